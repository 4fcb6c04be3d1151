package channel

import (
	"context"
	"errors"

	"google.golang.org/grpc/metadata"
)

const (
	MDLivestreamID  = "livestream-id"
	MDParticipantID = "participant-id"
	MDDisplayName   = "display-name"
	MDRole          = "role"
)

const (
	RoleSeller = "seller"
	RoleViewer = "viewer"
)

var ErrMissingIdentity = errors.New("missing connect identity")

// Identity travels as gRPC metadata on every Connect call.
type Identity struct {
	LivestreamID  string
	ParticipantID string
	DisplayName   string
	Role          string
}

func (i Identity) IsValid() bool {
	if i.LivestreamID == "" || i.ParticipantID == "" {
		return false
	}
	return i.Role == RoleSeller || i.Role == RoleViewer
}

func (i Identity) OutgoingContext(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx,
		MDLivestreamID, i.LivestreamID,
		MDParticipantID, i.ParticipantID,
		MDDisplayName, i.DisplayName,
		MDRole, i.Role,
	)
}

func IdentityFromIncoming(ctx context.Context) (Identity, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return Identity{}, ErrMissingIdentity
	}
	first := func(key string) string {
		if v := md.Get(key); len(v) > 0 {
			return v[0]
		}
		return ""
	}
	id := Identity{
		LivestreamID:  first(MDLivestreamID),
		ParticipantID: first(MDParticipantID),
		DisplayName:   first(MDDisplayName),
		Role:          first(MDRole),
	}
	if id.DisplayName == "" {
		id.DisplayName = id.ParticipantID
	}
	if !id.IsValid() {
		return Identity{}, ErrMissingIdentity
	}
	return id, nil
}
