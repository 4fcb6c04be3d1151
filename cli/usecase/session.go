package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ponyo877/livebid/api"
	"github.com/ponyo877/livebid/channel"
	"github.com/ponyo877/livebid/cli/domain"
)

type Config struct {
	LivestreamID string
	SellerID     string
	SellerName   string

	TickInterval     time.Duration
	CreditInterval   time.Duration
	LowCreditMark    int
	CallTimeout      time.Duration
	FinalizeAttempts int
	RetryBackoff     time.Duration
	ChatLimit        int
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.CreditInterval <= 0 {
		c.CreditInterval = DefaultCreditInterval
	}
	if c.LowCreditMark <= 0 {
		c.LowCreditMark = 1
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.FinalizeAttempts <= 0 {
		c.FinalizeAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.SellerName == "" {
		c.SellerName = c.SellerID
	}
	return c
}

// Snapshot is a consistent copy of the session state for display.
type Snapshot struct {
	Livestream domain.Livestream
	Products   []domain.Product
	Round      domain.BiddingRound
	Leader     *domain.Bid
	Bids       []domain.Bid
	Messages   []domain.ChatMessage
	Viewers    []domain.Viewer
	Online     bool
}

type Option func(*SessionController)

func WithMediaGate(g MediaGate) Option {
	return func(c *SessionController) { c.media = g }
}

// SessionController owns one livestream session. All state lives on a
// single goroutine; channel frames, seller commands, countdown ticks and
// backend results reach it as closures on the inbox.
type SessionController struct {
	cfg     Config
	channel Channel
	backend Backend
	media   MediaGate
	log     *slog.Logger

	router   *Router
	bidding  *domain.BiddingMachine
	chat     *domain.ChatLog
	presence *domain.Presence
	monitor  *CreditMonitor

	// loop goroutine only
	livestream domain.Livestream
	online     bool
	ended      bool
	countdown  *time.Ticker
	tickC      <-chan time.Time
	results    map[string]pendingRound

	inbox   chan func()
	notices chan domain.Notice
	endedCh chan struct{}

	startMu sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	calls   sync.WaitGroup
}

func NewSessionController(cfg Config, ch Channel, backend Backend, log *slog.Logger, opts ...Option) *SessionController {
	cfg = cfg.withDefaults()
	c := &SessionController{
		cfg:        cfg,
		channel:    ch,
		backend:    backend,
		media:      allowMedia{},
		log:        log.With("component", "session", "livestream_id", cfg.LivestreamID),
		router:     NewRouter(log),
		bidding:    domain.NewBiddingMachine(nil),
		chat:       domain.NewChatLog(cfg.ChatLimit),
		presence:   domain.NewPresence(),
		livestream: domain.NewLivestream(cfg.LivestreamID),
		results:    make(map[string]pendingRound),
		inbox:      make(chan func(), 64),
		notices:    make(chan domain.Notice, 64),
		endedCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.monitor = NewCreditMonitor(backend, cfg.LivestreamID, cfg.CreditInterval, c, log)

	c.router.Handle(domain.EventConnectionStatus, c.onConnectionStatus)
	c.router.Handle(domain.EventViewerJoined, c.onViewerJoined)
	c.router.Handle(domain.EventViewerLeft, c.onViewerLeft)
	c.router.Handle(domain.EventChatMessage, c.onChatMessage)
	c.router.Handle(domain.EventBidPlaced, c.onBidPlaced)
	c.router.Handle(domain.EventBiddingStarted, c.onBiddingStarted)
	c.router.Handle(domain.EventBiddingEnded, c.onBiddingEnded)
	c.router.Handle(domain.EventBiddingTimerUpdate, c.onTimerUpdate)
	c.router.Handle(domain.EventUserBanned, c.onUserBanned)
	return c
}

// StartSession takes the livestream live: capture precheck, backend start,
// catalog load, channel connect, then the event pump and credit monitor.
func (c *SessionController) StartSession(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return fmt.Errorf("%w: session already started", domain.ErrConflict)
	}

	if err := c.media.Acquire(ctx); err != nil {
		return fmt.Errorf("%w: capture devices unavailable: %v", domain.ErrFatalSession, err)
	}
	id := c.cfg.LivestreamID
	if err := c.backend.StartLivestream(ctx, id); err != nil {
		return err
	}
	products, err := c.backend.ListProducts(ctx, id)
	if err != nil {
		c.abortStart(err)
		return err
	}
	c.bidding.SetCatalog(products)
	if ls, err := c.backend.GetLivestream(ctx, id); err == nil {
		c.livestream = ls
	} else {
		c.log.Warn("could not load livestream", "error", err)
	}
	if err := c.channel.Connect(ctx); err != nil {
		c.abortStart(err)
		return err
	}
	c.livestream.Status = domain.LivestreamLive

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.started = true
	c.workers.Add(2)
	go c.loop()
	go c.pump()
	c.monitor.Start(c.ctx)

	c.log.Info("session started", "products", len(products), "credits", c.livestream.RemainingCredits)
	c.notify(domain.NoticeInfo, fmt.Sprintf("livestream %s is live", id))
	return nil
}

// abortStart ends a livestream the backend already marked live when the
// rest of StartSession failed.
func (c *SessionController) abortStart(cause error) {
	c.log.Error("session start failed", "error", cause)
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()
	if err := c.backend.EndLivestream(ctx, c.cfg.LivestreamID); err != nil {
		c.log.Error("end livestream failed", "error", err)
	}
}

// EndSession tears the session down. Calling it again, or after the session
// ended on its own, only waits for outstanding work.
func (c *SessionController) EndSession(ctx context.Context) error {
	if !c.isStarted() {
		return nil
	}
	err := c.do(ctx, func() error {
		c.endSession("session ended by seller")
		return nil
	})
	if errors.Is(err, domain.ErrSessionNotActive) {
		err = nil
	}
	c.Wait()
	return err
}

// Wait blocks until the session goroutines and backend calls have finished.
func (c *SessionController) Wait() {
	c.workers.Wait()
	c.calls.Wait()
}

// Done is closed once the session has ended, whatever ended it.
func (c *SessionController) Done() <-chan struct{} {
	return c.endedCh
}

func (c *SessionController) Notices() <-chan domain.Notice {
	return c.notices
}

// StartBidding opens a round. The hub runs the round clock, so a round is
// refused while the channel is down.
func (c *SessionController) StartBidding(ctx context.Context, productID string, startingPrice float64, duration int) (domain.BiddingRound, error) {
	var round domain.BiddingRound
	err := c.do(ctx, func() error {
		if c.ended {
			return domain.ErrSessionNotActive
		}
		if !c.channel.Connected() {
			c.notify(domain.NoticeWarning, "offline: bidding not started")
			return domain.ErrOffline
		}
		r, err := c.bidding.StartRound(productID, startingPrice, duration)
		if err != nil {
			return err
		}
		round = r
		c.startCountdown()
		c.announceStart(r)
		c.persistStart(r)
		c.notify(domain.NoticeInfo, fmt.Sprintf("bidding started for %s at %.2f (%ds)", r.Product.Name, r.StartingPrice, r.Duration))
		return nil
	})
	return round, err
}

// EndBidding closes the active round by hand. Without an active round it
// does nothing.
func (c *SessionController) EndBidding(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.ended {
			return domain.ErrSessionNotActive
		}
		c.endRound(domain.EndManual)
		return nil
	})
}

// SendChat posts a seller message. While the channel is down the message is
// kept locally marked unsent and ErrOffline is returned with it.
func (c *SessionController) SendChat(ctx context.Context, content string) (domain.ChatMessage, error) {
	var msg domain.ChatMessage
	err := c.do(ctx, func() error {
		if c.ended {
			return domain.ErrSessionNotActive
		}
		online := c.channel.Connected()
		m, err := c.chat.AppendPending(domain.RoleSeller, c.cfg.SellerID, c.cfg.SellerName, content, !online)
		if err != nil {
			return err
		}
		msg = m
		if !online {
			c.notify(domain.NoticeWarning, "offline: message kept locally and not sent")
			return domain.ErrOffline
		}
		if err := c.emit(channel.TypeChatSend, map[string]any{
			"message":   m.Content,
			"client_id": m.ID,
		}); err != nil {
			c.chat.MarkUnsent(m.ID)
			msg.Pending, msg.Unsent = false, true
			c.notify(domain.NoticeWarning, "message not sent: "+err.Error())
			return err
		}
		return nil
	})
	return msg, err
}

func (c *SessionController) BanViewer(ctx context.Context, viewerID string) error {
	return c.do(ctx, func() error {
		if c.ended {
			return domain.ErrSessionNotActive
		}
		if viewerID == "" {
			return fmt.Errorf("%w: viewer id is required", domain.ErrValidation)
		}
		if !c.channel.Connected() {
			return domain.ErrOffline
		}
		if err := c.emit(channel.TypeBanViewer, map[string]any{"user_id": viewerID}); err != nil {
			return err
		}
		c.notify(domain.NoticeInfo, "ban requested for "+viewerID)
		return nil
	})
}

func (c *SessionController) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.do(ctx, func() error {
		snap = c.snapshot()
		return nil
	})
	return snap, err
}

func (c *SessionController) snapshot() Snapshot {
	snap := Snapshot{
		Livestream: c.livestream,
		Products:   c.bidding.Catalog(),
		Round:      c.bidding.Round(),
		Bids:       c.bidding.Ranked(),
		Messages:   c.chat.Messages(),
		Viewers:    c.presence.Viewers(),
		Online:     c.online,
	}
	snap.Livestream.ViewerCount = c.presence.Count()
	if leader, ok := c.bidding.Leader(); ok {
		snap.Leader = &leader
	}
	return snap
}

// OnCreditTick hands a metering result to the session loop.
func (c *SessionController) OnCreditTick(ctx context.Context, tick domain.CreditTick) {
	select {
	case c.inbox <- func() { c.applyCredit(tick) }:
	case <-ctx.Done():
	case <-c.ctx.Done():
	}
}

func (c *SessionController) isStarted() bool {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	return c.started
}

// do runs fn on the session loop and waits for its result.
func (c *SessionController) do(ctx context.Context, fn func() error) error {
	if !c.isStarted() {
		return domain.ErrSessionNotActive
	}
	errc := make(chan error, 1)
	select {
	case c.inbox <- func() { errc <- fn() }:
	case <-c.ctx.Done():
		return domain.ErrSessionNotActive
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-c.ctx.Done():
		select {
		case err := <-errc:
			return err
		default:
			return domain.ErrSessionNotActive
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. It reports false once the loop is gone.
func (c *SessionController) post(fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *SessionController) loop() {
	defer c.workers.Done()
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.tickC:
			if c.bidding.Tick() {
				c.endRound(c.bidding.ExpiryReason())
			}
		case <-c.ctx.Done():
			c.stopCountdown()
			return
		}
	}
}

func (c *SessionController) pump() {
	defer c.workers.Done()
	for raw := range c.channel.Frames() {
		if !c.post(func() { c.router.Route(raw) }) {
			return
		}
	}
}

// async runs a backend call off the loop.
func (c *SessionController) async(fn func()) {
	c.calls.Add(1)
	go func() {
		defer c.calls.Done()
		fn()
	}()
}

func (c *SessionController) startCountdown() {
	c.stopCountdown()
	c.countdown = time.NewTicker(c.cfg.TickInterval)
	c.tickC = c.countdown.C
}

func (c *SessionController) stopCountdown() {
	if c.countdown != nil {
		c.countdown.Stop()
	}
	c.countdown = nil
	c.tickC = nil
}

func (c *SessionController) endSession(reason string) {
	if c.ended {
		return
	}
	c.ended = true
	c.log.Info("ending session", "reason", reason)

	c.monitor.Stop()
	settled := c.endRound(domain.EndManual)
	c.stopCountdown()
	c.awaitFinalize(settled)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	if err := c.backend.EndLivestream(ctx, c.cfg.LivestreamID); err != nil {
		c.log.Error("end livestream failed", "error", err)
		c.notify(domain.NoticeError, "backend did not confirm the end of the livestream: "+err.Error())
	}
	cancel()
	c.livestream.Status = domain.LivestreamEnded

	if err := c.channel.Close(); err != nil {
		c.log.Warn("close channel failed", "error", err)
	}
	c.online = false
	close(c.endedCh)
	c.cancel()
}

// endRound closes the active round and performs its side effects. It is a
// no-op when no round is active. The returned channel closes once the
// backend has been told the result, or nil when nothing is pending.
func (c *SessionController) endRound(reason domain.EndReason) <-chan struct{} {
	result, ok := c.bidding.EndRound(reason)
	if !ok {
		return nil
	}
	c.stopCountdown()
	c.log.Info("round ended",
		"round_id", result.Round.ID,
		"reason", result.Reason.String(),
		"bids", result.BidCount,
	)
	c.notify(domain.NoticeInfo, describeResult(result))
	if reason != domain.EndRemote {
		c.announceEnd(result)
	}
	p, ok := c.results[result.Round.ID]
	if !ok {
		return nil
	}
	delete(c.results, result.Round.ID)
	p.result <- result
	return p.settled
}

// awaitFinalize holds the loop until a round result has reached the backend.
// The wait covers one start call plus every finalize attempt and backoff.
func (c *SessionController) awaitFinalize(settled <-chan struct{}) {
	if settled == nil {
		return
	}
	limit := c.cfg.CallTimeout * time.Duration(c.cfg.FinalizeAttempts+1)
	for attempt := 1; attempt < c.cfg.FinalizeAttempts; attempt++ {
		limit += c.cfg.RetryBackoff * time.Duration(attempt)
	}
	timer := time.NewTimer(limit)
	defer timer.Stop()
	select {
	case <-settled:
	case <-timer.C:
		c.log.Warn("round finalize still running at session end", "waited", limit)
	}
}

func describeResult(r domain.RoundResult) string {
	if !r.HasWinner() {
		return fmt.Sprintf("bidding for %s ended (%s): no winner", r.Round.Product.Name, r.Reason)
	}
	return fmt.Sprintf("bidding for %s ended (%s): %s won at %.2f",
		r.Round.Product.Name, r.Reason, winnerName(r.Winner), r.Winner.Amount)
}

func winnerName(b *domain.Bid) string {
	if b.BidderName != "" {
		return b.BidderName
	}
	return b.BidderID
}

func (c *SessionController) emit(frameType string, data map[string]any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()
	err := c.channel.Emit(ctx, channel.NewFrame(frameType, c.cfg.LivestreamID, data))
	if err != nil {
		c.log.Warn("emit failed", "type", frameType, "error", err)
	}
	return err
}

func (c *SessionController) announceStart(r domain.BiddingRound) {
	err := c.emit(channel.TypeStartBidding, map[string]any{
		"bidding_id":     r.ID,
		"product_id":     r.Product.ID,
		"product_name":   r.Product.Name,
		"starting_price": r.StartingPrice,
		"timer_duration": r.Duration,
		"remaining_time": r.Remaining,
	})
	if err != nil {
		c.notify(domain.NoticeWarning, "viewers were not told the round started: "+err.Error())
	}
}

func (c *SessionController) announceEnd(r domain.RoundResult) {
	data := map[string]any{
		"bidding_id": r.Round.ID,
		"product_id": r.Round.Product.ID,
		"reason":     r.Reason.String(),
		"bid_count":  r.BidCount,
	}
	if r.HasWinner() {
		data["winner_id"] = r.Winner.BidderID
		data["winner_name"] = r.Winner.BidderName
		data["amount"] = r.Winner.Amount
	}
	if err := c.emit(channel.TypeEndBidding, data); err != nil {
		c.notify(domain.NoticeWarning, "viewers were not told the round ended: "+err.Error())
	}
}

type pendingRound struct {
	result  chan domain.RoundResult
	settled chan struct{}
}

// persistStart records the round with the backend, then waits for the round
// to end and finalizes it under the id the backend assigned.
func (c *SessionController) persistStart(r domain.BiddingRound) {
	p := pendingRound{
		result:  make(chan domain.RoundResult, 1),
		settled: make(chan struct{}),
	}
	c.results[r.ID] = p
	req := api.StartBiddingRequest{
		Product:       r.Product.ID,
		StartingPrice: r.StartingPrice,
		TimerDuration: r.Duration,
	}
	c.async(func() {
		defer close(p.settled)
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
		remoteID, err := c.backend.StartBidding(ctx, c.cfg.LivestreamID, req)
		cancel()
		if err != nil {
			c.log.Error("start bidding failed", "round_id", r.ID, "error", err)
			c.notify(domain.NoticeError, "backend did not record the round: "+err.Error())
			return
		}
		// The loop may already be waiting on settled, so the remote id is
		// only delivered while the round can still use it.
		var result domain.RoundResult
		select {
		case c.inbox <- func() { c.bidding.SetRemoteID(r.ID, remoteID) }:
			result = <-p.result
		case result = <-p.result:
		}
		if result.Reason == domain.EndRemote {
			return
		}
		c.finalize(remoteID, result)
	})
}

// finalize reports a round result to the backend, retrying transient
// failures. The local round stays ended whatever the outcome.
func (c *SessionController) finalize(remoteID string, r domain.RoundResult) {
	req := api.EndBiddingRequest{Reason: r.Reason.String()}
	if r.HasWinner() {
		req.WinnerID = r.Winner.BidderID
		req.WinnerName = r.Winner.BidderName
		req.Amount = r.Winner.Amount
	}
	var err error
	for attempt := 1; attempt <= c.cfg.FinalizeAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
		err = c.backend.EndBidding(ctx, remoteID, req)
		cancel()
		if err == nil || !errors.Is(err, domain.ErrTransient) {
			break
		}
		if attempt < c.cfg.FinalizeAttempts {
			time.Sleep(c.cfg.RetryBackoff * time.Duration(attempt))
		}
	}
	if err != nil {
		c.log.Error("end bidding failed", "bidding_id", remoteID, "error", err)
		c.notify(domain.NoticeError, fmt.Sprintf("round %s was not finalized: %v", remoteID, err))
		return
	}
	c.log.Info("round finalized", "bidding_id", remoteID)
}

func (c *SessionController) applyCredit(tick domain.CreditTick) {
	if c.ended {
		return
	}
	c.livestream.ApplyCredit(tick)
	if tick.Deducted {
		c.notify(domain.NoticeInfo, fmt.Sprintf("1 credit used, %d remaining", tick.RemainingCredits))
	}
	switch {
	case tick.RemainingCredits <= 0:
		c.notify(domain.NoticeTerminal, "credits exhausted, livestream ended")
		c.endSession("credits exhausted")
	case tick.RemainingCredits <= c.cfg.LowCreditMark:
		c.notify(domain.NoticeWarning, fmt.Sprintf("only %d credit left", tick.RemainingCredits))
	}
}

// notify never blocks; notices are dropped when nobody is reading.
func (c *SessionController) notify(level domain.NoticeLevel, message string) {
	select {
	case c.notices <- domain.NewNotice(level, message):
	default:
		c.log.Debug("notice dropped", "level", level.String(), "message", message)
	}
}

func (c *SessionController) onConnectionStatus(ev domain.Event) {
	if ev.ViewerCount != nil {
		c.presence.SetCount(*ev.ViewerCount)
	}
	if ev.Connected == c.online {
		return
	}
	c.online = ev.Connected
	if c.online {
		c.notify(domain.NoticeInfo, "channel connected")
	} else {
		c.notify(domain.NoticeWarning, "channel offline, reconnecting")
	}
}

func (c *SessionController) onViewerJoined(ev domain.Event) {
	c.presence.Join(ev.Viewer())
	if ev.ViewerCount != nil {
		c.presence.SetCount(*ev.ViewerCount)
	}
}

func (c *SessionController) onViewerLeft(ev domain.Event) {
	c.presence.Leave(ev.UserID)
	if ev.ViewerCount != nil {
		c.presence.SetCount(*ev.ViewerCount)
	}
}

func (c *SessionController) onChatMessage(ev domain.Event) {
	if !c.chat.Confirm(ev.ChatMessage()) {
		c.log.Debug("duplicate chat message dropped", "id", ev.MessageID)
	}
}

// currentRound reports whether a frame's bidding id refers to the active
// round. Frames without an id are taken to mean the active round.
func (c *SessionController) currentRound(biddingID string) bool {
	r, ok := c.bidding.Active()
	if !ok {
		return false
	}
	return biddingID == "" || biddingID == r.ID || (r.RemoteID != "" && biddingID == r.RemoteID)
}

func (c *SessionController) onBidPlaced(ev domain.Event) {
	if !c.currentRound(ev.BiddingID) {
		c.log.Debug("bid for inactive round dropped", "bidding_id", ev.BiddingID)
		return
	}
	if err := c.bidding.RecordBid(ev.Bid()); err != nil {
		c.log.Debug("bid dropped", "user_id", ev.UserID, "amount", ev.Amount, "error", err)
	}
}

func (c *SessionController) onBiddingStarted(ev domain.Event) {
	if c.currentRound(ev.BiddingID) {
		return
	}
	c.log.Warn("ignoring round started elsewhere", "bidding_id", ev.BiddingID)
}

func (c *SessionController) onBiddingEnded(ev domain.Event) {
	if ev.BiddingID == "" || !c.currentRound(ev.BiddingID) {
		return
	}
	c.endRound(domain.EndRemote)
}

func (c *SessionController) onTimerUpdate(ev domain.Event) {
	if ev.RemainingTime == nil || !c.currentRound(ev.BiddingID) {
		return
	}
	if c.bidding.SetRemaining(*ev.RemainingTime) {
		c.endRound(c.bidding.ExpiryReason())
	}
}

func (c *SessionController) onUserBanned(ev domain.Event) {
	if c.presence.ConfirmBan(ev.UserID) {
		c.notify(domain.NoticeInfo, "banned "+ev.UserID)
	}
}
