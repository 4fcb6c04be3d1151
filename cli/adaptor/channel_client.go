package adaptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ponyo877/livebid/channel"
	"github.com/ponyo877/livebid/cli/domain"
	"google.golang.org/grpc"
)

const (
	frameBuffer   = 128
	minReconnect  = time.Second
	maxReconnect  = 30 * time.Second
	closeDeadline = 5 * time.Second
)

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ChannelClient owns one Connect stream for a livestream session and keeps
// it alive. Inbound frames, plus a synthesized connection_status frame on
// every state change, are delivered on Frames in arrival order.
type ChannelClient struct {
	client   channel.Client
	identity channel.Identity
	log      *slog.Logger

	frames chan map[string]any

	mu     sync.Mutex
	sendMu sync.Mutex
	stream channel.ClientStream
	state  ConnState
	cancel context.CancelFunc
	done   chan struct{}

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewChannelClient(cc grpc.ClientConnInterface, identity channel.Identity, log *slog.Logger) *ChannelClient {
	return &ChannelClient{
		client:     channel.NewClient(cc),
		identity:   identity,
		log:        log.With("component", "channel", "livestream_id", identity.LivestreamID),
		frames:     make(chan map[string]any, frameBuffer),
		minBackoff: minReconnect,
		maxBackoff: maxReconnect,
	}
}

// WithBackoff overrides the reconnect delays.
func (c *ChannelClient) WithBackoff(initial, ceiling time.Duration) *ChannelClient {
	c.minBackoff, c.maxBackoff = initial, ceiling
	return c
}

// Connect opens the first stream and starts the receive loop. The loop runs
// until Close, reconnecting with exponential backoff.
func (c *ChannelClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return domain.ErrOffline
	}
	if c.done != nil {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := c.open(runCtx)
	if err != nil {
		cancel()
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: connect channel: %v", domain.ErrTransient, err)
	}

	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(runCtx, stream)
	return nil
}

func (c *ChannelClient) open(ctx context.Context) (channel.ClientStream, error) {
	return c.client.Connect(c.identity.OutgoingContext(ctx))
}

func (c *ChannelClient) run(ctx context.Context, stream channel.ClientStream) {
	defer close(c.done)
	defer close(c.frames)
	defer c.detach()

	backoff := c.minBackoff
	for {
		c.attach(stream)
		if !c.deliver(ctx, statusFrame(true)) {
			return
		}
		err := c.receive(ctx, stream)
		c.detach()
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, io.EOF) {
			c.log.Info("channel closed by hub")
		} else {
			c.log.Warn("channel disconnected", "error", err)
		}
		if !c.deliver(ctx, statusFrame(false)) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			c.setState(StateConnecting)
			stream, err = c.open(ctx)
			if err == nil {
				backoff = c.minBackoff
				break
			}
			c.setState(StateDisconnected)
			c.log.Warn("channel reconnect failed", "error", err, "retry_in", backoff)
			backoff = min(backoff*2, c.maxBackoff)
		}
	}
}

func (c *ChannelClient) receive(ctx context.Context, stream channel.ClientStream) error {
	for {
		msg, err := stream.Recv()
		if err != nil {
			return err
		}
		if !c.deliver(ctx, msg.AsMap()) {
			return ctx.Err()
		}
	}
}

func (c *ChannelClient) deliver(ctx context.Context, frame map[string]any) bool {
	select {
	case c.frames <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *ChannelClient) attach(stream channel.ClientStream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stream = stream
	c.state = StateConnected
}

func (c *ChannelClient) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stream = nil
	if c.state != StateClosed {
		c.state = StateDisconnected
	}
}

func (c *ChannelClient) setState(s ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		c.state = s
	}
}

func (c *ChannelClient) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *ChannelClient) Connected() bool {
	return c.State() == StateConnected
}

// Frames is closed once the client has been closed.
func (c *ChannelClient) Frames() <-chan map[string]any {
	return c.frames
}

// Emit sends one frame. It fails fast with domain.ErrOffline while no stream
// is attached.
func (c *ChannelClient) Emit(ctx context.Context, frame channel.Frame) error {
	msg, err := frame.Struct()
	if err != nil {
		return err
	}
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return domain.ErrOffline
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := stream.Send(msg); err != nil {
		return fmt.Errorf("%w: send %s: %v", domain.ErrTransient, frame.Type, err)
	}
	return nil
}

// Close stops the receive loop and releases the stream. It is safe to call
// more than once and before Connect.
func (c *ChannelClient) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	stream, cancel, done := c.stream, c.cancel, c.done
	c.mu.Unlock()

	if stream != nil {
		c.sendMu.Lock()
		_ = stream.CloseSend()
		c.sendMu.Unlock()
	}
	if cancel == nil {
		close(c.frames)
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-time.After(closeDeadline):
		return errors.New("channel receive loop did not stop")
	}
	return nil
}

func statusFrame(connected bool) map[string]any {
	return map[string]any{
		"type": channel.TypeConnectionStatus,
		"data": map[string]any{"connected": connected, "local": true},
	}
}
