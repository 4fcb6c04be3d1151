package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/ponyo877/livebid/channel"
	"github.com/ponyo877/livebid/server/domain"
)

type HubConfig struct {
	// Tick is one second of round time.
	Tick time.Duration
	// TimerBroadcastInterval is how often bidding_timer_update goes out.
	TimerBroadcastInterval time.Duration
}

func (c HubConfig) withDefaults() HubConfig {
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.TimerBroadcastInterval <= 0 {
		c.TimerBroadcastInterval = 5 * time.Second
	}
	return c
}

// StreamUsecase relays participant frames between the members of a
// livestream room and keeps the authoritative round clock per room.
type StreamUsecase struct {
	repo          Repository
	streamManager domain.StreamManager
	cfg           HubConfig
	log           *slog.Logger

	mu     sync.Mutex
	clocks map[string]*roundTimer
	wg     sync.WaitGroup
}

type roundTimer struct {
	clock  *domain.RoundClock
	cancel context.CancelFunc
}

func NewStreamUsecase(repo Repository, streamManager domain.StreamManager, cfg HubConfig, log *slog.Logger) *StreamUsecase {
	return &StreamUsecase{
		repo:          repo,
		streamManager: streamManager,
		cfg:           cfg.withDefaults(),
		log:           log.With("component", "hub"),
		clocks:        make(map[string]*roundTimer),
	}
}

// HandleStreamSession joins the session to its room, processes its requests
// until requestChan closes, then leaves the room.
func (u *StreamUsecase) HandleStreamSession(
	requestChan <-chan domain.StreamRequest,
	responseChan chan<- domain.StreamResponse,
	session domain.StreamSession,
) error {
	if err := u.streamManager.RegisterSession(session.ID, responseChan); err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	defer u.streamManager.UnregisterSession(session.ID)

	if err := u.handleJoin(session); err != nil {
		responseChan <- domain.NewDisconnect(err)
		return err
	}

	for request := range requestChan {
		if err := u.HandleRequest(session, request); err != nil {
			u.log.Debug("request rejected", "session", session.String(), "request", request.String(), "error", err)
			if sendErr := u.streamManager.SendToSession(session.ID,
				domain.NewStreamResponse(domain.NewErrorEvent(session.LivestreamID, err))); sendErr != nil {
				u.log.Warn("could not report error", "session_id", session.ID, "error", sendErr)
			}
		}
	}

	u.HandleSessionEnd(session)
	return nil
}

func (u *StreamUsecase) handleJoin(session domain.StreamSession) error {
	if err := u.streamManager.JoinRoom(session); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}
	count := u.streamManager.ViewerCount(session.LivestreamID)
	u.log.Info("joined", "session", session.String(), "remote", session.Remote, "viewers", count)

	status := domain.NewStreamEvent(channel.TypeConnectionStatus, session.LivestreamID, map[string]any{
		"connected":    true,
		"viewer_count": count,
		"session_id":   session.ID,
	})
	if err := u.streamManager.SendToSession(session.ID, domain.NewStreamResponse(status)); err != nil {
		u.log.Warn("could not send connection status", "session_id", session.ID, "error", err)
	}

	if !session.IsSeller() {
		u.broadcast(domain.NewStreamEvent(channel.TypeViewerJoined, session.LivestreamID, map[string]any{
			"user_id":      session.ParticipantID,
			"user_name":    session.Name,
			"viewer_count": count,
		}))
	}

	// Late joiners learn the running round at once.
	u.mu.Lock()
	t, running := u.clocks[session.LivestreamID]
	var started, timer domain.StreamEvent
	if running && !t.clock.Expired() {
		started = roundStartedEvent(session.LivestreamID, t.clock)
		timer = timerEvent(session.LivestreamID, t.clock.BiddingID, t.clock.Remaining)
	}
	u.mu.Unlock()
	if started.Type != "" {
		u.streamManager.SendToSession(session.ID, domain.NewStreamResponse(started))
		u.streamManager.SendToSession(session.ID, domain.NewStreamResponse(timer))
	}
	return nil
}

// HandleRequest applies one participant request.
func (u *StreamUsecase) HandleRequest(session domain.StreamSession, request domain.StreamRequest) error {
	if !request.IsValid() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, request.Type)
	}
	if request.SellerOnly() && !session.IsSeller() {
		return fmt.Errorf("%w: %s", domain.ErrForbidden, request.Type)
	}

	switch request.Type {
	case domain.RequestChat:
		return u.HandleChatMessage(session, request.Message)
	case domain.RequestBid:
		return u.handleBid(session, request)
	case domain.RequestStartBidding:
		return u.startRound(session.LivestreamID, request)
	case domain.RequestEndBidding:
		return u.endRound(session.LivestreamID, request)
	case domain.RequestBan:
		return u.ban(session, request.UserID)
	default:
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, request.Type)
	}
}

// HandleChatMessage stamps and broadcasts a chat line, then stores it.
func (u *StreamUsecase) HandleChatMessage(session domain.StreamSession, content string) error {
	msg := domain.NewMessage(ulid.Make().String(), session, content, time.Now().UTC())

	if err := u.streamManager.BroadcastToRoom(domain.NewStreamEvent(channel.TypeChatMessage, session.LivestreamID, map[string]any{
		"id":         msg.ID,
		"user_id":    msg.SenderID,
		"user_name":  msg.DisplayName,
		"role":       msg.Role,
		"message":    msg.Content,
		"created_at": channel.Timestamp(msg.CreatedAt),
	})); err != nil {
		return fmt.Errorf("failed to broadcast message: %w", err)
	}

	if u.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := u.repo.CreateMessage(ctx, msg); err != nil {
			u.log.Warn("could not store chat message", "livestream_id", session.LivestreamID, "error", err)
		}
	}
	return nil
}

func (u *StreamUsecase) handleBid(session domain.StreamSession, request domain.StreamRequest) error {
	if session.IsSeller() {
		return fmt.Errorf("%w: sellers cannot bid", domain.ErrForbidden)
	}

	u.mu.Lock()
	t, running := u.clocks[session.LivestreamID]
	if !running || !t.clock.Accepts(request.BiddingID) {
		u.mu.Unlock()
		return domain.ErrNoActiveRound
	}
	clock := *t.clock
	u.mu.Unlock()

	if request.Amount < clock.StartingPrice {
		return fmt.Errorf("%w: bid %.2f is below the starting price %.2f",
			domain.ErrInvalidInput, request.Amount, clock.StartingPrice)
	}

	return u.streamManager.BroadcastToRoom(domain.NewStreamEvent(channel.TypeBidPlaced, session.LivestreamID, map[string]any{
		"bidding_id": clock.BiddingID,
		"product_id": clock.ProductID,
		"user_id":    session.ParticipantID,
		"user_name":  session.Name,
		"amount":     request.Amount,
		"timestamp":  channel.Timestamp(time.Now()),
	}))
}

// startRound replaces any clock left from an earlier round; the seller's
// engine allows only one active round at a time.
func (u *StreamUsecase) startRound(livestreamID string, request domain.StreamRequest) error {
	clock, err := domain.NewRoundClock(request.BiddingID, request.ProductID, request.StartingPrice, request.TimerDuration)
	if err != nil {
		return fmt.Errorf("invalid round: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &roundTimer{clock: clock, cancel: cancel}

	u.mu.Lock()
	if prev, ok := u.clocks[livestreamID]; ok {
		prev.cancel()
	}
	u.clocks[livestreamID] = t
	u.mu.Unlock()

	event := roundStartedEvent(livestreamID, clock)
	if request.ProductName != "" {
		event.Data["product_name"] = request.ProductName
	}
	u.broadcast(event)
	u.log.Info("round started", "livestream_id", livestreamID, "bidding_id", clock.BiddingID, "duration", clock.Duration)

	u.wg.Add(1)
	go u.runClock(ctx, livestreamID, t)
	return nil
}

func (u *StreamUsecase) runClock(ctx context.Context, livestreamID string, t *roundTimer) {
	defer u.wg.Done()

	every := int(u.cfg.TimerBroadcastInterval / u.cfg.Tick)
	if every < 1 {
		every = 1
	}

	ticker := time.NewTicker(u.cfg.Tick)
	defer ticker.Stop()

	for ticks := 1; ; ticks++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		u.mu.Lock()
		if u.clocks[livestreamID] != t {
			u.mu.Unlock()
			return
		}
		remaining, expired := t.clock.Tick()
		biddingID := t.clock.BiddingID
		u.mu.Unlock()

		if expired {
			u.log.Info("round clock expired", "livestream_id", livestreamID, "bidding_id", biddingID)
			u.broadcast(timerEvent(livestreamID, biddingID, 0))
			return
		}
		if ticks%every == 0 {
			u.broadcast(timerEvent(livestreamID, biddingID, remaining))
		}
	}
}

// endRound relays the seller's result. An end for a round the hub is not
// running is still relayed, so participants converge on the seller's view.
func (u *StreamUsecase) endRound(livestreamID string, request domain.StreamRequest) error {
	u.mu.Lock()
	if t, ok := u.clocks[livestreamID]; ok && t.clock.BiddingID == request.BiddingID {
		t.cancel()
		delete(u.clocks, livestreamID)
	}
	u.mu.Unlock()

	data := map[string]any{
		"bidding_id": request.BiddingID,
		"product_id": request.ProductID,
		"reason":     request.Reason,
		"bid_count":  request.BidCount,
	}
	if request.WinnerID != "" {
		data["winner_id"] = request.WinnerID
		data["winner_name"] = request.WinnerName
		data["amount"] = request.Amount
	}
	u.broadcast(domain.NewStreamEvent(channel.TypeBiddingEnded, livestreamID, data))
	u.log.Info("round ended", "livestream_id", livestreamID, "bidding_id", request.BiddingID, "reason", request.Reason)
	return nil
}

func (u *StreamUsecase) ban(seller domain.StreamSession, participantID string) error {
	if participantID == seller.ParticipantID {
		return fmt.Errorf("%w: cannot ban yourself", domain.ErrInvalidInput)
	}
	u.streamManager.Ban(seller.LivestreamID, participantID)

	for _, s := range u.streamManager.SessionsOf(seller.LivestreamID, participantID) {
		if err := u.streamManager.SendToSession(s.ID, domain.NewDisconnect(domain.ErrBanned)); err != nil {
			u.log.Warn("could not disconnect banned session", "session_id", s.ID, "error", err)
		}
	}

	u.broadcast(domain.NewStreamEvent(channel.TypeUserBanned, seller.LivestreamID, map[string]any{
		"user_id": participantID,
	}))
	u.log.Info("participant banned", "livestream_id", seller.LivestreamID, "user_id", participantID)
	return nil
}

// HandleSessionEnd removes the session from its room and tells the rest of
// the room when a viewer leaves.
func (u *StreamUsecase) HandleSessionEnd(session domain.StreamSession) {
	if _, exists := u.streamManager.GetSession(session.ID); !exists {
		return
	}
	if err := u.streamManager.LeaveRoom(session.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		u.log.Warn("could not leave room", "session_id", session.ID, "error", err)
	}
	u.log.Info("left", "session", session.String())

	if session.IsSeller() || !u.streamManager.IsRoomActive(session.LivestreamID) {
		return
	}
	u.broadcast(domain.NewStreamEvent(channel.TypeViewerLeft, session.LivestreamID, map[string]any{
		"user_id":      session.ParticipantID,
		"user_name":    session.Name,
		"viewer_count": u.streamManager.ViewerCount(session.LivestreamID),
	}))
}

func (u *StreamUsecase) GetStreamStats() domain.StreamStats {
	return u.streamManager.GetStats()
}

// Close stops every round clock.
func (u *StreamUsecase) Close() {
	u.mu.Lock()
	for id, t := range u.clocks {
		t.cancel()
		delete(u.clocks, id)
	}
	u.mu.Unlock()
	u.wg.Wait()
}

func (u *StreamUsecase) broadcast(event domain.StreamEvent) {
	if err := u.streamManager.BroadcastToRoom(event); err != nil && !errors.Is(err, domain.ErrNotFound) {
		u.log.Warn("broadcast failed", "event", event.String(), "error", err)
	}
}

func roundStartedEvent(livestreamID string, clock *domain.RoundClock) domain.StreamEvent {
	return domain.NewStreamEvent(channel.TypeBiddingStarted, livestreamID, map[string]any{
		"bidding_id":     clock.BiddingID,
		"product_id":     clock.ProductID,
		"starting_price": clock.StartingPrice,
		"timer_duration": clock.Duration,
		"remaining_time": clock.Remaining,
	})
}

func timerEvent(livestreamID, biddingID string, remaining int) domain.StreamEvent {
	return domain.NewStreamEvent(channel.TypeBiddingTimerUpdate, livestreamID, map[string]any{
		"bidding_id":     biddingID,
		"remaining_time": remaining,
	})
}
