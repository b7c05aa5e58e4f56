package processor

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/metagraph/internal/command"
	"github.com/zjrosen/metagraph/internal/log"
	"github.com/zjrosen/metagraph/internal/pubsub"
)

// ===========================================================================
// Test Helpers
// ===========================================================================

// testCommand is a minimal command routed by type.
type testCommand struct {
	*command.BaseCommand
	value       int
	validateErr error
}

const cmdTest command.CommandType = "test_command"

func newTestCommand(value int) *testCommand {
	base := command.NewBaseCommand(cmdTest, command.SourceAPI)
	return &testCommand{BaseCommand: &base, value: value}
}

func (c *testCommand) Validate() error {
	return c.validateErr
}

// successHandler returns a successful result.
func successHandler() CommandHandler {
	return HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
		return &command.CommandResult{Success: true, Data: "ok"}, nil
	})
}

// errorHandler returns an error.
func errorHandler(errMsg string) CommandHandler {
	return HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
		return nil, errors.New(errMsg)
	})
}

// slowHandler sleeps for the specified duration.
func slowHandler(d time.Duration) CommandHandler {
	return HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
		time.Sleep(d)
		return &command.CommandResult{Success: true}, nil
	})
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	log.InitWriter(buf)
	return buf
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ pubsub.EventType, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload)
}

func (p *recordingPublisher) logEvents() []CommandLogEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []CommandLogEvent
	for _, e := range p.events {
		if le, ok := e.(CommandLogEvent); ok {
			out = append(out, le)
		}
	}
	return out
}

// ===========================================================================
// ChainMiddleware Tests
// ===========================================================================

func TestChainMiddleware_AppliesInCorrectOrder(t *testing.T) {
	var order []string

	makeMiddleware := func(name string) Middleware {
		return func(next CommandHandler) CommandHandler {
			return HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
				order = append(order, name+"-before")
				result, err := next.Handle(ctx, cmd)
				order = append(order, name+"-after")
				return result, err
			})
		}
	}

	chained := ChainMiddleware(successHandler(),
		makeMiddleware("first"),
		makeMiddleware("second"),
		makeMiddleware("third"),
	)

	_, err := chained.Handle(context.Background(), newTestCommand(1))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"first-before",
		"second-before",
		"third-before",
		"third-after",
		"second-after",
		"first-after",
	}, order)
}

func TestChainMiddleware_NoMiddlewares(t *testing.T) {
	chained := ChainMiddleware(successHandler())

	result, err := chained.Handle(context.Background(), newTestCommand(1))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ok", result.Data)
}

// ===========================================================================
// LoggingMiddleware Tests
// ===========================================================================

func TestLoggingMiddleware_SuccessfulExecution(t *testing.T) {
	logs := captureLogs(t)
	wrapped := NewLoggingMiddleware()(successHandler())

	cmd := newTestCommand(42)
	result, err := wrapped.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, logs.String(), "command completed")
	assert.Contains(t, logs.String(), "command_id="+cmd.ID())
	assert.Contains(t, logs.String(), "source=api")
}

func TestLoggingMiddleware_HandlesErrors(t *testing.T) {
	logs := captureLogs(t)
	wrapped := NewLoggingMiddleware()(errorHandler("something went wrong"))

	_, err := wrapped.Handle(context.Background(), newTestCommand(1))
	require.Error(t, err)
	assert.Contains(t, logs.String(), "[ERROR] [commands] command failed")
	assert.Contains(t, logs.String(), "error=something went wrong")
}

func TestLoggingMiddleware_HandlesErrorResult(t *testing.T) {
	logs := captureLogs(t)
	handler := HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
		return &command.CommandResult{Success: false, Error: errors.New("cycle")}, nil
	})

	result, err := NewLoggingMiddleware()(handler).Handle(context.Background(), newTestCommand(1))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, logs.String(), "[WARN] [commands] command completed with error result")
}

// ===========================================================================
// TimeoutMiddleware Tests
// ===========================================================================

func TestTimeoutMiddleware_SlowHandlerStillCompletes(t *testing.T) {
	logs := captureLogs(t)
	wrapped := NewTimeoutMiddleware(5 * time.Millisecond)(slowHandler(20 * time.Millisecond))

	result, err := wrapped.Handle(context.Background(), newTestCommand(1))
	require.NoError(t, err)
	assert.True(t, result.Success, "slow handler is not aborted")
	assert.Contains(t, logs.String(), "handler exceeded time threshold")
}

func TestTimeoutMiddleware_FastHandlerDoesNotWarn(t *testing.T) {
	logs := captureLogs(t)
	wrapped := NewTimeoutMiddleware(time.Second)(successHandler())

	_, err := wrapped.Handle(context.Background(), newTestCommand(1))
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "exceeded")
}

func TestTimeoutMiddleware_DefaultThreshold(t *testing.T) {
	logs := captureLogs(t)
	wrapped := NewTimeoutMiddleware(0)(slowHandler(DefaultTimeoutWarningThreshold / 10))

	_, err := wrapped.Handle(context.Background(), newTestCommand(1))
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "exceeded")
}

// ===========================================================================
// CommandLogMiddleware Tests
// ===========================================================================

func TestCommandLogMiddleware_Success(t *testing.T) {
	pub := &recordingPublisher{}
	wrapped := NewCommandLogMiddleware(pub)(successHandler())

	cmd := newTestCommand(1)
	_, err := wrapped.Handle(context.Background(), cmd)
	require.NoError(t, err)

	events := pub.logEvents()
	require.Len(t, events, 1)
	assert.Equal(t, cmd.ID(), events[0].CommandID)
	assert.Equal(t, cmdTest, events[0].CommandType)
	assert.Equal(t, command.SourceAPI, events[0].Source)
	assert.True(t, events[0].Success)
	assert.NoError(t, events[0].Error)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Empty(t, events[0].TraceID)
}

func TestCommandLogMiddleware_Failure_HandlerError(t *testing.T) {
	pub := &recordingPublisher{}
	wrapped := NewCommandLogMiddleware(pub)(errorHandler("boom"))

	_, err := wrapped.Handle(context.Background(), newTestCommand(1))
	require.Error(t, err)

	events := pub.logEvents()
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
	assert.EqualError(t, events[0].Error, "boom")
}

func TestCommandLogMiddleware_Failure_ResultError(t *testing.T) {
	pub := &recordingPublisher{}
	resultErr := errors.New("no provider")
	handler := HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
		return &command.CommandResult{Success: false, Error: resultErr}, nil
	})

	_, err := NewCommandLogMiddleware(pub)(handler).Handle(context.Background(), newTestCommand(1))
	require.NoError(t, err)

	events := pub.logEvents()
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
	assert.ErrorIs(t, events[0].Error, resultErr)
}

func TestCommandLogMiddleware_Duration(t *testing.T) {
	pub := &recordingPublisher{}
	wrapped := NewCommandLogMiddleware(pub)(slowHandler(10 * time.Millisecond))

	_, err := wrapped.Handle(context.Background(), newTestCommand(1))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pub.logEvents()[0].Duration, 10*time.Millisecond)
}

func TestCommandLogMiddleware_NilEventBus_GracefulNoOp(t *testing.T) {
	wrapped := NewCommandLogMiddleware(nil)(successHandler())

	result, err := wrapped.Handle(context.Background(), newTestCommand(1))
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestCommandLogMiddleware_WithBroker(t *testing.T) {
	broker := pubsub.NewBroker[any]()
	defer broker.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := broker.Subscribe(ctx)

	wrapped := NewCommandLogMiddleware(broker)(successHandler())
	_, err := wrapped.Handle(context.Background(), newTestCommand(1))
	require.NoError(t, err)

	select {
	case ev := <-ch:
		_, ok := ev.Payload.(CommandLogEvent)
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}
