package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Awaisee01/fund-sub001/internal/notify"
	"github.com/Awaisee01/fund-sub001/internal/queue"
	"github.com/Awaisee01/fund-sub001/internal/tracking"
)

type mockDeliverer struct {
	DeliverFunc func(ctx context.Context, task tracking.ConversionTask) (tracking.Ack, error)
}

func (m *mockDeliverer) Deliver(ctx context.Context, task tracking.ConversionTask) (tracking.Ack, error) {
	return m.DeliverFunc(ctx, task)
}

type mockMailer struct {
	SendFunc func(ctx context.Context, summary notify.LeadSummary) error
}

func (m *mockMailer) SendLeadNotification(ctx context.Context, summary notify.LeadSummary) error {
	return m.SendFunc(ctx, summary)
}

func mustTask(t *testing.T, typ string, payload any) queue.Task {
	t.Helper()
	task, err := queue.NewTask(typ, payload)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	return task
}

func TestHandleConversion(t *testing.T) {
	var got tracking.ConversionTask
	p := NewProcessor(&mockDeliverer{DeliverFunc: func(_ context.Context, task tracking.ConversionTask) (tracking.Ack, error) {
		got = task
		return tracking.Ack{EventsReceived: 1}, nil
	}}, &mockMailer{}, zerolog.Nop())

	task := mustTask(t, tracking.TaskConversion, tracking.ConversionTask{Events: []tracking.ServerEvent{{EventName: "Lead", EventID: "e1"}}})
	if err := p.Handle(context.Background(), task); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(got.Events) != 1 || got.Events[0].EventID != "e1" {
		t.Fatalf("unexpected delivery %+v", got)
	}
}

func TestHandleConversionRetriesOnFailure(t *testing.T) {
	p := NewProcessor(&mockDeliverer{DeliverFunc: func(context.Context, tracking.ConversionTask) (tracking.Ack, error) {
		return tracking.Ack{}, errors.New("502")
	}}, &mockMailer{}, zerolog.Nop())

	task := mustTask(t, tracking.TaskConversion, tracking.ConversionTask{Events: []tracking.ServerEvent{{EventName: "Lead"}}})
	if err := p.Handle(context.Background(), task); err == nil {
		t.Fatal("expected error so the message is redelivered")
	}
}

func TestHandleNotify(t *testing.T) {
	var got notify.LeadSummary
	p := NewProcessor(&mockDeliverer{}, &mockMailer{SendFunc: func(_ context.Context, s notify.LeadSummary) error {
		got = s
		return nil
	}}, zerolog.Nop())

	task := mustTask(t, notify.TaskNotify, notify.LeadSummary{LeadID: "l1", Name: "Jane", ServiceType: "solar"})
	if err := p.Handle(context.Background(), task); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got.LeadID != "l1" {
		t.Fatalf("unexpected summary %+v", got)
	}
}

func TestHandleNotifyNotConfiguredIsAcked(t *testing.T) {
	p := NewProcessor(&mockDeliverer{}, &mockMailer{SendFunc: func(context.Context, notify.LeadSummary) error {
		return notify.ErrNotConfigured
	}}, zerolog.Nop())

	if err := p.Handle(context.Background(), mustTask(t, notify.TaskNotify, notify.LeadSummary{})); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestHandleDropsUndecodableAndUnknown(t *testing.T) {
	p := NewProcessor(&mockDeliverer{}, &mockMailer{}, zerolog.Nop())

	bad := queue.Task{Type: notify.TaskNotify, Payload: json.RawMessage(`"not an object"`)}
	if err := p.Handle(context.Background(), bad); err != nil {
		t.Fatalf("undecodable task should be dropped, got %v", err)
	}
	if err := p.Handle(context.Background(), queue.Task{Type: "thumbnail", Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("unknown task should be dropped, got %v", err)
	}
}
