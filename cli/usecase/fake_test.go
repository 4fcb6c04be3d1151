package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ponyo877/livebid/api"
	"github.com/ponyo877/livebid/channel"
	"github.com/ponyo877/livebid/cli/domain"
)

type fakeChannel struct {
	mu         sync.Mutex
	frames     chan map[string]any
	emitted    []channel.Frame
	online     bool
	closed     bool
	connectErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{frames: make(chan map[string]any, 32), online: true}
}

func (f *fakeChannel) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectErr
}

func (f *fakeChannel) Frames() <-chan map[string]any { return f.frames }

func (f *fakeChannel) Emit(_ context.Context, frame channel.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online || f.closed {
		return domain.ErrOffline
	}
	f.emitted = append(f.emitted, frame)
	return nil
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online && !f.closed
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.frames)
	}
	return nil
}

func (f *fakeChannel) setOnline(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = v
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) sent(frameType string) []channel.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []channel.Frame
	for _, fr := range f.emitted {
		if fr.Type == frameType {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeChannel) push(frameType string, data map[string]any) {
	f.frames <- channel.NewFrame(frameType, "ls1", data).Map()
}

type fakeBackend struct {
	mu sync.Mutex

	products []domain.Product
	ticks    []domain.CreditTick
	startErr error
	endErr   error
	listErr  error

	// delays EndBidding so callers that do not wait for it are caught
	finalizeDelay time.Duration

	started      int
	ended        int
	biddings     []api.StartBiddingRequest
	finalized    []api.EndBiddingRequest
	finalizedIDs []string
	calls        []string
}

func (b *fakeBackend) GetLivestream(_ context.Context, id string) (domain.Livestream, error) {
	return domain.Livestream{ID: id, Status: domain.LivestreamScheduled, RemainingCredits: 5}, nil
}

func (b *fakeBackend) StartLivestream(context.Context, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started++
	return b.startErr
}

func (b *fakeBackend) EndLivestream(context.Context, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended++
	b.calls = append(b.calls, "EndLivestream")
	return b.endErr
}

func (b *fakeBackend) ListProducts(context.Context, string) ([]domain.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return b.products, nil
}

func (b *fakeBackend) StartBidding(_ context.Context, _ string, req api.StartBiddingRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.biddings = append(b.biddings, req)
	return "remote-" + req.Product, nil
}

func (b *fakeBackend) EndBidding(_ context.Context, id string, req api.EndBiddingRequest) error {
	b.mu.Lock()
	delay := b.finalizeDelay
	b.mu.Unlock()
	time.Sleep(delay)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "EndBidding")
	b.finalized = append(b.finalized, req)
	b.finalizedIDs = append(b.finalizedIDs, id)
	return nil
}

func (b *fakeBackend) ProcessCreditDeduction(context.Context, string) (domain.CreditTick, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ticks) == 0 {
		return domain.CreditTick{}, errors.New("meter unavailable")
	}
	tick := b.ticks[0]
	if len(b.ticks) > 1 {
		b.ticks = b.ticks[1:]
	}
	return tick, nil
}

func (b *fakeBackend) counts() (started, ended, finalized int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started, b.ended, len(b.finalized)
}

func (b *fakeBackend) callLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
