package evconsole

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const headerEvent = "event"

// envelope 事件在 MQ 上的传输格式。
type envelope struct {
	ID   string              `json:"id"`
	Name string              `json:"name"`
	Data jsoniter.RawMessage `json:"data,omitempty"`
}

// topicFor 计算事件对应的 MQ topic：<namespace>.<eventName>。
func topicFor(namespace, eventName string) string {
	if namespace == "" {
		return eventName
	}
	return namespace + "." + eventName
}

// encodeEvent 将已分发的事件编码为消息；PayloadEvent 仅编码载荷，其余事件编码导出字段。
func encodeEvent(namespace, eventName string, e Event) (Message, error) {
	var v any = e
	if pe, ok := e.(*PayloadEvent); ok {
		v = pe.Payload
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("encode event %s: %w", eventName, err)
	}
	id := EventID(e)
	body, err := json.Marshal(envelope{ID: id, Name: eventName, Data: data})
	if err != nil {
		return Message{}, fmt.Errorf("encode envelope %s: %w", eventName, err)
	}
	return Message{
		Topic:   topicFor(namespace, eventName),
		Key:     id,
		Body:    body,
		Headers: map[string]string{headerEvent: eventName},
	}, nil
}

// decodeEvent 还原为 PayloadEvent，载荷保留为原始 JSON，由监听器按需解析。
func decodeEvent(m Message) (string, *PayloadEvent, error) {
	var env envelope
	if err := json.Unmarshal(m.Body, &env); err != nil {
		return "", nil, fmt.Errorf("decode envelope (topic=%s): %w", m.Topic, err)
	}
	if env.Name == "" {
		env.Name = m.Headers[headerEvent]
	}
	if env.Name == "" {
		return "", nil, fmt.Errorf("decode envelope (topic=%s): missing event name", m.Topic)
	}
	e := &PayloadEvent{Payload: env.Data}
	e.id = env.ID
	e.remote = true
	return env.Name, e, nil
}
