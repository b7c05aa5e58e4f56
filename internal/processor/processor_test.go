package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/metagraph/internal/command"
	"github.com/zjrosen/metagraph/internal/pubsub"
)

func startProcessor(t *testing.T, p *CommandProcessor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	require.NoError(t, p.WaitForReady(context.Background()))
	t.Cleanup(func() {
		cancel()
		p.Stop()
	})
}

// ===========================================================================
// Lifecycle Tests
// ===========================================================================

func TestProcessor_SubmitBeforeRunFails(t *testing.T) {
	p := NewCommandProcessor()
	assert.ErrorIs(t, p.Submit(newTestCommand(1)), command.ErrQueueFull)

	_, err := p.SubmitAndWait(context.Background(), newTestCommand(1))
	assert.ErrorIs(t, err, command.ErrQueueFull)
	assert.False(t, p.IsRunning())
	assert.Zero(t, p.QueueLength())
}

func TestProcessor_SubmitAndWait(t *testing.T) {
	p := NewCommandProcessor()
	p.RegisterHandler(cmdTest, successHandler())
	startProcessor(t, p)

	result, err := p.SubmitAndWait(context.Background(), newTestCommand(1))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ok", result.Data)
	assert.Equal(t, int64(1), p.ProcessedCount())
	assert.Zero(t, p.ErrorCount())
}

func TestProcessor_FIFOOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	p := NewCommandProcessor()
	p.RegisterHandler(cmdTest, HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
		mu.Lock()
		seen = append(seen, cmd.(*testCommand).value)
		mu.Unlock()
		return &command.CommandResult{Success: true}, nil
	}))
	startProcessor(t, p)

	for i := 0; i < 50; i++ {
		require.NoError(t, p.Submit(newTestCommand(i)))
	}
	_, err := p.SubmitAndWait(context.Background(), newTestCommand(50))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 51)
	for i, v := range seen {
		require.Equal(t, i, v)
	}
}

func TestProcessor_ValidationFailure(t *testing.T) {
	p := NewCommandProcessor()
	called := false
	p.RegisterHandler(cmdTest, HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
		called = true
		return &command.CommandResult{Success: true}, nil
	}))
	startProcessor(t, p)

	cmd := newTestCommand(1)
	cmd.validateErr = errors.New("bad input")
	result, err := p.SubmitAndWait(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.EqualError(t, result.Error, "bad input")
	assert.False(t, called)
	assert.Equal(t, int64(1), p.ErrorCount())
}

func TestProcessor_UnknownCommandType(t *testing.T) {
	p := NewCommandProcessor()
	startProcessor(t, p)

	result, err := p.SubmitAndWait(context.Background(), newTestCommand(1))
	require.NoError(t, err)
	assert.ErrorIs(t, result.Error, ErrUnknownCommandType)
}

func TestProcessor_HandlerErrorWrappedInResult(t *testing.T) {
	p := NewCommandProcessor()
	p.RegisterHandler(cmdTest, errorHandler("nope"))
	startProcessor(t, p)

	result, err := p.SubmitAndWait(context.Background(), newTestCommand(1))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.EqualError(t, result.Error, "nope")
}

func TestProcessor_HandlerPanicIsRecovered(t *testing.T) {
	p := NewCommandProcessor()
	p.RegisterHandler(cmdTest, HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
		if cmd.(*testCommand).value == 1 {
			panic("kaboom")
		}
		return &command.CommandResult{Success: true}, nil
	}))
	startProcessor(t, p)

	result, err := p.SubmitAndWait(context.Background(), newTestCommand(1))
	require.NoError(t, err)
	assert.ErrorIs(t, result.Error, ErrHandlerPanic)

	result, err = p.SubmitAndWait(context.Background(), newTestCommand(2))
	require.NoError(t, err)
	assert.True(t, result.Success, "processor keeps running after a panic")
}

func TestProcessor_FollowUpsAndEvents(t *testing.T) {
	bus := pubsub.NewBroker[any]()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := bus.Subscribe(ctx)

	done := make(chan int, 1)
	p := NewCommandProcessor(WithEventBus(bus))
	p.RegisterHandler(cmdTest, HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
		v := cmd.(*testCommand).value
		if v == 1 {
			return &command.CommandResult{
				Success:  true,
				Events:   []any{"first-done"},
				FollowUp: []command.Command{newTestCommand(2)},
			}, nil
		}
		done <- v
		return &command.CommandResult{Success: true}, nil
	}))
	startProcessor(t, p)

	_, err := p.SubmitAndWait(context.Background(), newTestCommand(1))
	require.NoError(t, err)

	select {
	case v := <-done:
		assert.Equal(t, 2, v)
	case <-time.After(time.Second):
		t.Fatal("follow-up not processed")
	}

	select {
	case ev := <-ch:
		assert.Equal(t, "first-done", ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}
}

func TestProcessor_ErrorEventPublished(t *testing.T) {
	bus := pubsub.NewBroker[any]()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := bus.Subscribe(ctx)

	p := NewCommandProcessor(WithEventBus(bus))
	startProcessor(t, p)

	cmd := newTestCommand(1)
	_, err := p.SubmitAndWait(context.Background(), cmd)
	require.NoError(t, err)

	select {
	case ev := <-ch:
		errEvent, ok := ev.Payload.(CommandErrorEvent)
		require.True(t, ok)
		assert.Equal(t, cmd.ID(), errEvent.CommandID)
		assert.ErrorIs(t, errEvent.Error, ErrUnknownCommandType)
	case <-time.After(time.Second):
		t.Fatal("error event not published")
	}
}

func TestProcessor_MiddlewareApplied(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewCommandProcessor(WithMiddleware(NewCommandLogMiddleware(pub)))
	p.RegisterHandler(cmdTest, successHandler())
	startProcessor(t, p)

	_, err := p.SubmitAndWait(context.Background(), newTestCommand(1))
	require.NoError(t, err)
	assert.Len(t, pub.logEvents(), 1)
}

func TestProcessor_QueueFull(t *testing.T) {
	release := make(chan struct{})
	p := NewCommandProcessor(WithQueueCapacity(1))
	p.RegisterHandler(cmdTest, HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
		<-release
		return &command.CommandResult{Success: true}, nil
	}))
	startProcessor(t, p)
	defer close(release)

	require.NoError(t, p.Submit(newTestCommand(1)))
	// The first command may already be in the handler; fill until rejected.
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = p.Submit(newTestCommand(i + 2))
	}
	assert.ErrorIs(t, err, command.ErrQueueFull)
}

func TestProcessor_SubmitAndWaitContextCancel(t *testing.T) {
	release := make(chan struct{})
	p := NewCommandProcessor()
	p.RegisterHandler(cmdTest, HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
		<-release
		return &command.CommandResult{Success: true}, nil
	}))
	startProcessor(t, p)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.SubmitAndWait(ctx, newTestCommand(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessor_Drain(t *testing.T) {
	var mu sync.Mutex
	count := 0
	p := NewCommandProcessor()
	p.RegisterHandler(cmdTest, HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
		mu.Lock()
		count++
		mu.Unlock()
		return &command.CommandResult{Success: true}, nil
	}))
	go p.Run(context.Background())
	require.NoError(t, p.WaitForReady(context.Background()))

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(newTestCommand(i)))
	}
	p.Drain()

	assert.False(t, p.IsRunning())
	mu.Lock()
	assert.Equal(t, 10, count)
	mu.Unlock()
	p.Drain()
}
