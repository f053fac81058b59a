package queue

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	fieldType    = "type"
	fieldPayload = "payload"
)

var ErrMalformedTask = errors.New("malformed task message")

// Task is one unit of detached work carried on the task stream. Attempt is
// filled by the consumer from the stream's delivery count and is not
// written to the stream.
type Task struct {
	Type    string
	Payload json.RawMessage
	Attempt int
}

func NewTask(taskType string, payload any) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("encode %s payload: %w", taskType, err)
	}
	return Task{Type: taskType, Payload: raw}, nil
}

// Decode unmarshals the payload into out.
func (t Task) Decode(out any) error {
	if err := json.Unmarshal(t.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", t.Type, err)
	}
	return nil
}

func (t Task) values() map[string]any {
	return map[string]any{
		fieldType:    t.Type,
		fieldPayload: string(t.Payload),
	}
}

// decodeTask rebuilds a task from stream values. deliveries is how many
// times the group has handed this message out, including this one.
func decodeTask(values map[string]any, deliveries int64) (Task, error) {
	typ, _ := values[fieldType].(string)
	payload, _ := values[fieldPayload].(string)
	if typ == "" || payload == "" {
		return Task{}, ErrMalformedTask
	}
	if deliveries < 1 {
		deliveries = 1
	}
	return Task{Type: typ, Payload: json.RawMessage(payload), Attempt: int(deliveries)}, nil
}
