package adaptor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/ponyo877/livebid/channel"
	"github.com/ponyo877/livebid/server/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Adaptor serves the Connect stream of the livestream channel.
type Adaptor struct {
	uc  StreamUsecase
	log *slog.Logger
}

func NewAdaptor(uc StreamUsecase, log *slog.Logger) *Adaptor {
	return &Adaptor{uc: uc, log: log.With("component", "channel")}
}

func (a *Adaptor) Connect(stream channel.Stream) error {
	ctx := stream.Context()
	identity, err := channel.IdentityFromIncoming(ctx)
	if err != nil {
		return status.Error(codes.Unauthenticated, err.Error())
	}

	remote := "unknown"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remote = p.Addr.String()
	}
	session := domain.NewStreamSession(ulid.Make().String(), identity, remote)

	requestChan := make(chan domain.StreamRequest, 32)
	responseChan := make(chan domain.StreamResponse, 32)

	usecaseErr := make(chan error, 1)
	go func() {
		defer close(responseChan)
		if err := a.uc.HandleStreamSession(requestChan, responseChan, session); err != nil {
			usecaseErr <- err
		}
	}()

	responseErr := make(chan error, 1)
	go func() {
		for response := range responseChan {
			if response.Disconnect {
				responseErr <- disconnectStatus(response.Error)
				return
			}
			event := response.Event
			if response.IsError() {
				event = domain.NewErrorEvent(session.LivestreamID, response.Error)
			}
			frame, err := event.Frame().Struct()
			if err != nil {
				a.log.Error("could not encode frame", "event", event.String(), "error", err)
				continue
			}
			if err := stream.Send(frame); err != nil {
				responseErr <- fmt.Errorf("failed to send response: %w", err)
				return
			}
		}
	}()

	defer close(requestChan)

	inbound := make(chan *structpb.Struct)
	recvErr := make(chan error, 1)
	go func() {
		for {
			in, err := stream.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			select {
			case inbound <- in:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case in := <-inbound:
			request := a.convertToDomainRequest(in)
			select {
			case requestChan <- request:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err := <-recvErr:
			if errors.Is(err, io.EOF) {
				a.log.Info("participant disconnected", "session", session.String())
				return nil
			}
			a.log.Info("participant disconnected with error", "session", session.String(), "error", err)
			return nil
		case err := <-usecaseErr:
			a.log.Warn("session rejected", "session", session.String(), "error", err)
			return disconnectStatus(err)
		case err := <-responseErr:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// convertToDomainRequest decodes a participant frame. Frames that do not
// decode become an unknown request, which the hub answers with an error
// frame.
func (a *Adaptor) convertToDomainRequest(in *structpb.Struct) domain.StreamRequest {
	raw := in.AsMap()
	request, err := domain.NewStreamRequest(channel.TypeOf(raw), channel.Flatten(raw))
	if err != nil {
		a.log.Debug("undecodable frame", "error", err)
		return domain.StreamRequest{}
	}
	return request
}

func disconnectStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrBanned), errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
