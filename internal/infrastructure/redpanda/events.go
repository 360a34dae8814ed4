package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chakravue/fieldeval/internal/form"
)

// AsyncProducer is the part of Producer the commit publisher needs
type AsyncProducer interface {
	ProduceAsync(ctx context.Context, topic, key string, value []byte, callback func(error))
}

// CommitPublisher forwards commit events to a topic. It implements
// form.CommitSink.
type CommitPublisher struct {
	producer AsyncProducer
	topic    string
	logger   *zap.Logger
	// OnDelivered, if set, is called after each successful delivery
	OnDelivered func()
	// OnFailed, if set, is called after each failed delivery
	OnFailed func()
}

// NewCommitPublisher creates a publisher writing to topic
func NewCommitPublisher(producer AsyncProducer, topic string, logger *zap.Logger) *CommitPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topic == "" {
		topic = TopicFieldCommits
	}
	return &CommitPublisher{producer: producer, topic: topic, logger: logger}
}

// Publish encodes the event and hands it to the producer. Delivery failures
// are logged by the producer; the form never waits on them.
func (p *CommitPublisher) Publish(ctx context.Context, event form.CommitEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("encode commit event", zap.Error(err))
		return
	}
	key := event.FormID + "/" + event.FieldID
	p.producer.ProduceAsync(context.WithoutCancel(ctx), p.topic, key, value, func(err error) {
		switch {
		case err == nil && p.OnDelivered != nil:
			p.OnDelivered()
		case err != nil && p.OnFailed != nil:
			p.OnFailed()
		}
	})
}

// Reading is an externally sourced value for a mounted field
type Reading struct {
	FormID  string `json:"form_id"`
	FieldID string `json:"field_id"`
	Value   string `json:"value"`
}

// FormStore looks up open forms
type FormStore interface {
	Get(id string) (*form.Form, error)
}

// ReadingHandler applies readings as external value updates. Readings for
// forms or fields that are not open are dropped.
func ReadingHandler(store FormStore, logger *zap.Logger, onConsumed func()) MessageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, msg *ConsumedMessage) error {
		var r Reading
		if err := json.Unmarshal(msg.Value, &r); err != nil {
			return fmt.Errorf("decode reading: %w", err)
		}
		if r.FormID == "" || r.FieldID == "" {
			return fmt.Errorf("reading at offset %d: form_id and field_id are required", msg.Offset)
		}
		if onConsumed != nil {
			onConsumed()
		}

		f, err := store.Get(r.FormID)
		if err != nil {
			if errors.Is(err, form.ErrFormNotFound) {
				logger.Warn("reading for unknown form", zap.String("form_id", r.FormID))
				return nil
			}
			return err
		}
		if err := f.SetValue(r.FieldID, r.Value); err != nil {
			if errors.Is(err, form.ErrFieldNotFound) {
				logger.Warn("reading for unknown field",
					zap.String("form_id", r.FormID),
					zap.String("field_id", r.FieldID))
				return nil
			}
			return err
		}
		logger.Debug("reading applied",
			zap.String("form_id", r.FormID),
			zap.String("field_id", r.FieldID))
		return nil
	}
}
