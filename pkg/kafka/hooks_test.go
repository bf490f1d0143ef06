package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookChainThreadsBeforeInOrder(t *testing.T) {
	var order []string
	tag := func(name string) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				order = append(order, name)
				return ctx, km, append(data, []byte(name)...), nil
			},
		}
	}

	chain := NewHookChain(tag("a"), nil, tag("b"))
	_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, []byte("xab"), data)
}

func TestHookChainBeforeErrorShortCircuits(t *testing.T) {
	boom := errors.New("reject")
	var secondRan bool
	var errored []string

	first := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			return ctx, km, data, boom
		},
		Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, _ error) {
			errored = append(errored, "first")
		},
	}
	second := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			secondRan = true
			return ctx, km, data, nil
		},
		Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, _ error) {
			errored = append(errored, "second")
		},
	}

	chain := NewHookChain(first, second)
	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	assert.ErrorIs(t, err, boom)
	assert.False(t, secondRan)
	// every hook hears about the failure
	assert.Equal(t, []string{"first", "second"}, errored)
}

func TestHookChainRecoversPanickingHook(t *testing.T) {
	chain := NewHookChain(HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("hook bug")
		},
	})

	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var hookErr *HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, "ERR_PANIC", hookErr.Code)

	// After and OnError panics are swallowed entirely
	panicky := HookFuncs{
		After: func(context.Context, string, kafka.Message, []byte, error) { panic("after") },
		Err:   func(context.Context, string, kafka.Message, []byte, error) { panic("err") },
	}
	assert.NotPanics(t, func() {
		NewHookChain(panicky).AfterHandle(context.Background(), "t", kafka.Message{}, nil, nil)
		NewHookChain(panicky).OnError(context.Background(), "t", kafka.Message{}, nil, errors.New("x"))
	})
}

func TestHookChainAfterUnwindsInReverse(t *testing.T) {
	var order []string
	after := func(name string) ConsumerHook {
		return HookFuncs{
			After: func(context.Context, string, kafka.Message, []byte, error) {
				order = append(order, name)
			},
		}
	}

	chain := NewHookChain(after("a"), after("b"))
	chain.AfterHandle(context.Background(), "t", kafka.Message{}, nil, nil)
	assert.Equal(t, []string{"b", "a"}, order)
}

func TestTraceHookStampsContext(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc-123")}}}

	ctx, _, _, err := TraceHook().BeforeHandle(context.Background(), "t", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", TraceIDFrom(ctx))
	assert.False(t, StartTimeFrom(ctx).IsZero())

	// no header: no trace id, context untouched beyond the start time
	ctx, _, _, err = TraceHook().BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	require.NoError(t, err)
	assert.Empty(t, TraceIDFrom(ctx))
}

func TestLoggingHookReportsFailureWithTrace(t *testing.T) {
	var gotTopic, gotTrace string
	var gotErr error
	chain := NewHookChain(
		TraceHook(),
		LoggingHook(func(topic, traceID string, err error) {
			gotTopic, gotTrace, gotErr = topic, traceID, err
		}),
	)

	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("t-9")}}}
	ctx, _, _, err := chain.BeforeHandle(context.Background(), "bars", km, nil)
	require.NoError(t, err)

	cause := errors.New("handler failed")
	chain.OnError(ctx, "bars", km, nil, cause)
	assert.Equal(t, "bars", gotTopic)
	assert.Equal(t, "t-9", gotTrace)
	assert.ErrorIs(t, gotErr, cause)
}
