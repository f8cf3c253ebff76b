package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook intercepts the message lifecycle. BeforeHandle may rewrite the
// context, message, or payload before the handler runs.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, msg kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, msg kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, msg kafka.Message, data []byte, err error)
}

// NoopHook is the default hook. It passes everything through unchanged.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, msg kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, msg, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// HookFuncs adapts plain functions into a ConsumerHook. Nil fields fall back
// to pass-through behavior.
type HookFuncs struct {
	Before func(ctx context.Context, topic string, msg kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	After  func(ctx context.Context, topic string, msg kafka.Message, data []byte, err error)
	Err    func(ctx context.Context, topic string, msg kafka.Message, data []byte, err error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, topic string, msg kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	if h.Before == nil {
		return ctx, msg, data, nil
	}
	return h.Before(ctx, topic, msg, data)
}

func (h HookFuncs) AfterHandle(ctx context.Context, topic string, msg kafka.Message, data []byte, err error) {
	if h.After != nil {
		h.After(ctx, topic, msg, data, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, topic string, msg kafka.Message, data []byte, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, msg, data, err)
	}
}

// HookError carries a machine-readable code alongside the underlying error.
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }
