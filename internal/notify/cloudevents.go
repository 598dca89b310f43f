package notify

import (
	"context"
	"fmt"
	"log/slog"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

const eventTypePrefix = "com.documentreview.stage."

// Sender is the subset of the CloudEvents client used here.
type Sender interface {
	Send(ctx context.Context, event cloudevents.Event) cloudevents.Result
}

// EventPublisher publishes every message as a CloudEvent.
type EventPublisher struct {
	sender Sender
	source string
}

// NewEventPublisher creates an HTTP CloudEvents client targeting target.
func NewEventPublisher(target, source string) (*EventPublisher, error) {
	client, err := cloudevents.NewClientHTTP(cloudevents.WithTarget(target))
	if err != nil {
		return nil, fmt.Errorf("failed to create CloudEvents client: %w", err)
	}
	return NewEventPublisherWithSender(client, source), nil
}

// NewEventPublisherWithSender wraps an existing sender.
func NewEventPublisherWithSender(sender Sender, source string) *EventPublisher {
	if source == "" {
		source = "documentreviewflow"
	}
	return &EventPublisher{sender: sender, source: source}
}

// ToEvent converts a message into a structured CloudEvent.
func ToEvent(msg Message, source string) (cloudevents.Event, error) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(source)
	e.SetType(eventTypePrefix + string(msg.Intent))
	e.SetSubject(msg.Stage)
	e.SetTime(msg.At)
	if msg.SessionID != "" {
		e.SetExtension("sessionid", msg.SessionID)
	}
	if err := e.SetData(cloudevents.ApplicationJSON, msg); err != nil {
		return e, fmt.Errorf("set event data: %w", err)
	}
	return e, nil
}

// Notify sends the event. Delivery failures are logged, never returned.
func (p *EventPublisher) Notify(ctx context.Context, msg Message) {
	logCtx := slog.With("sessionId", msg.SessionID, "stage", msg.Stage)
	e, err := ToEvent(msg, p.source)
	if err != nil {
		logCtx.Error("Failed to build stage event", "error", err)
		return
	}
	if result := p.sender.Send(ctx, e); cloudevents.IsUndelivered(result) {
		logCtx.Warn("Failed to deliver stage event", "error", result)
	}
}
