package evconsole

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger 为最小日志接口，应用可注入自定义实现。
type Logger interface {
	Info(ctx context.Context, msg string, kv ...interface{})
	Error(ctx context.Context, msg string, kv ...interface{})
}

// logrusLogger 默认实现，输出到 stderr，stdout 留给命令输出。
type logrusLogger struct {
	l *logrus.Logger
}

// NewLogger 按配置创建基于 logrus 的 Logger；w 为 nil 时写 stderr。
func NewLogger(cfg LoggerConfig, w io.Writer) Logger {
	l := logrus.New()
	if w == nil {
		w = os.Stderr
	}
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	if cfg.Level != "" {
		if level, err := logrus.ParseLevel(cfg.Level); err == nil {
			l.SetLevel(level)
		} else {
			l.WithError(err).Warn("invalid log level, falling back to info")
		}
	}
	return logrusLogger{l: l}
}

func (g logrusLogger) Info(ctx context.Context, msg string, kv ...interface{}) {
	g.l.WithContext(ctx).WithFields(kvFields(kv)).Info(msg)
}

func (g logrusLogger) Error(ctx context.Context, msg string, kv ...interface{}) {
	g.l.WithContext(ctx).WithFields(kvFields(kv)).Error(msg)
}

// kvFields 将交替的 key/value 转为 logrus.Fields；落单的值记在 "extra" 下。
func kvFields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	if len(kv)%2 == 1 {
		f["extra"] = kv[len(kv)-1]
	}
	return f
}

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...interface{})  {}
func (nopLogger) Error(context.Context, string, ...interface{}) {}
