package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaguard/internal/correlation"
)

func recordStage(name string, trace *[]string) Stage {
	return func(call *Call, next Next) error {
		*trace = append(*trace, name+":in")
		err := next()
		*trace = append(*trace, name+":out")
		return err
	}
}

func TestChain_RunsInOrder(t *testing.T) {
	t.Parallel()

	var trace []string
	h := New(recordStage("a", &trace), recordStage("b", &trace)).
		Append(recordStage("c", &trace)).
		Then(func(call *Call) error {
			trace = append(trace, "final")
			call.Result = "done"
			return nil
		})

	call := NewCall(context.Background(), "system.ping", nil)
	require.NoError(t, h(call))

	assert.Equal(t, []string{"a:in", "b:in", "c:in", "final", "c:out", "b:out", "a:out"}, trace)
	assert.Equal(t, "done", call.Result)
}

func TestChain_StageCompletesWithoutNext(t *testing.T) {
	t.Parallel()

	finalCalled := false
	h := New(func(call *Call, _ Next) error {
		call.Result = "short-circuit"
		return nil
	}).Then(func(*Call) error {
		finalCalled = true
		return nil
	})

	call := NewCall(context.Background(), "p", nil)
	require.NoError(t, h(call))
	assert.False(t, finalCalled)
	assert.Equal(t, "short-circuit", call.Result)
}

func TestChain_ErrorPropagatesUnchanged(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var trace []string

	h := New(recordStage("outer", &trace), func(*Call, Next) error {
		return boom
	}, recordStage("never", &trace)).Then(nil)

	err := h(NewCall(context.Background(), "p", nil))
	assert.Same(t, boom, err)
	assert.Equal(t, []string{"outer:in", "outer:out"}, trace)
}

func TestChain_NextCalledTwice(t *testing.T) {
	t.Parallel()

	count := 0
	h := New(func(_ *Call, next Next) error {
		_ = next()
		return next()
	}).Then(func(*Call) error {
		count++
		return nil
	})

	err := h(NewCall(context.Background(), "p", nil))
	assert.ErrorIs(t, err, ErrNextCalledTwice)
	assert.Equal(t, 1, count)
}

func TestChain_Immutable(t *testing.T) {
	t.Parallel()

	base := New(func(_ *Call, next Next) error { return next() })
	extended := base.Append(func(_ *Call, next Next) error { return next() })

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, extended.Len())
}

func TestNewCall_Transport(t *testing.T) {
	t.Parallel()

	call := NewCall(context.Background(), "p", nil)
	assert.Equal(t, correlation.TransportHTTP, call.Transport)

	ctx := correlation.NewContext(context.Background(),
		correlation.New("id", correlation.TransportWebSocket, nil))
	call = NewCall(ctx, "p", map[string]any{"a": 1})
	assert.Equal(t, correlation.TransportWebSocket, call.Transport)
	assert.Equal(t, "id", correlation.IDFromContext(call.Context()))
	assert.NotNil(t, call.Logger())
}

func TestCall_Context(t *testing.T) {
	t.Parallel()

	var call Call
	assert.NotNil(t, call.Context())

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	call.SetContext(ctx)
	assert.Equal(t, "v", call.Context().Value(key{}))
}
