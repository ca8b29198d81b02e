package evconsole

import (
	"context"
	"fmt"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"
)

type cronSvc struct {
	bus    *Dispatcher
	logger Logger
	cron   *cronv3.Cron
	mu     sync.Mutex
	ids    map[string]cronv3.EntryID
}

// NewScheduler 创建本地 Cron 调度器；timezone 为空或非法时使用本地时区。
func NewScheduler(bus *Dispatcher, cfg CronConfig, logger Logger) Scheduler {
	if logger == nil {
		logger = nopLogger{}
	}
	loc := time.Local
	if tz := cfg.Timezone; tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			logger.Error(context.Background(), "invalid cron timezone, using local", "timezone", tz, "error", err)
		}
	}
	cr := cronv3.New(cronv3.WithSeconds(), cronv3.WithLocation(loc))
	return &cronSvc{bus: bus, logger: logger, cron: cr, ids: make(map[string]cronv3.EntryID)}
}

func (s *cronSvc) Add(spec string, name string, fn func(context.Context) error, mws ...CronMiddleware) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("cron %q: nil fn", name)
	}
	key := name
	if key == "" {
		key = spec
	}
	final := fn
	for i := len(mws) - 1; i >= 0; i-- {
		final = mws[i](final)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ids[key]; exists {
		return "", fmt.Errorf("cron %q already registered", key)
	}
	id, err := s.cron.AddFunc(spec, func() {
		ctx := context.Background()
		if err := final(ctx); err != nil {
			s.logger.Error(ctx, "cron task failed", "name", key, "error", err)
		}
	})
	if err != nil {
		return "", fmt.Errorf("cron %q: %w", key, err)
	}
	s.ids[key] = id
	return key, nil
}

func (s *cronSvc) AddDispatch(spec string, eventName string, factory func() Event, mws ...CronMiddleware) (string, error) {
	if s.bus == nil {
		return "", fmt.Errorf("cron dispatch %q: no dispatcher", eventName)
	}
	return s.Add(spec, "dispatch:"+eventName, func(ctx context.Context) error {
		var e Event
		if factory != nil {
			e = factory()
		}
		_, err := s.bus.Dispatch(ctx, eventName, e)
		return err
	}, mws...)
}

func (s *cronSvc) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	eid, ok := s.ids[id]
	if !ok {
		return fmt.Errorf("cron %q not found", id)
	}
	s.cron.Remove(eid)
	delete(s.ids, id)
	return nil
}

func (s *cronSvc) Start(ctx context.Context) error {
	s.cron.Start()
	return nil
}

// Stop 等待运行中的任务结束，或直到 ctx 结束。
func (s *cronSvc) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// entries 返回已注册任务名，测试用。
func (s *cronSvc) entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.ids))
	for k := range s.ids {
		out = append(out, k)
	}
	return out
}
