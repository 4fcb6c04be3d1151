package adaptor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ponyo877/livebid/channel"
	"github.com/ponyo877/livebid/logger"
	"github.com/ponyo877/livebid/server/domain"
	"github.com/ponyo877/livebid/server/usecase"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startHub(t *testing.T) channel.Client {
	t.Helper()
	log := logger.Discard()
	sm := domain.NewStreamManager()
	hub := usecase.NewStreamUsecase(nil, sm, usecase.HubConfig{}, log)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	channel.Register(srv, NewAdaptor(hub, log))
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
		hub.Close()
		sm.Cleanup()
	})
	return channel.NewClient(conn)
}

func open(t *testing.T, client channel.Client, id channel.Identity) channel.ClientStream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	stream, err := client.Connect(id.OutgoingContext(ctx))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return stream
}

// recvType reads frames until one of the given type arrives.
func recvType(t *testing.T, stream channel.ClientStream, frameType string) map[string]any {
	t.Helper()
	type result struct {
		frame map[string]any
		err   error
	}
	got := make(chan result, 1)
	go func() {
		for {
			msg, err := stream.Recv()
			if err != nil {
				got <- result{err: err}
				return
			}
			raw := msg.AsMap()
			if channel.TypeOf(raw) == frameType {
				got <- result{frame: channel.Flatten(raw)}
				return
			}
		}
	}()
	select {
	case r := <-got:
		if r.err != nil {
			t.Fatalf("waiting for %s: %v", frameType, r.err)
		}
		return r.frame
	case <-time.After(3 * time.Second):
		t.Fatalf("no %s frame", frameType)
		return nil
	}
}

func sendFrame(t *testing.T, stream channel.ClientStream, frameType string, data map[string]any) {
	t.Helper()
	msg, err := channel.NewFrame(frameType, "ls1", data).Struct()
	if err != nil {
		t.Fatal(err)
	}
	if err := stream.Send(msg); err != nil {
		t.Fatalf("Send(%s) error = %v", frameType, err)
	}
}

func TestConnect(t *testing.T) {
	client := startHub(t)

	seller := open(t, client, channel.Identity{LivestreamID: "ls1", ParticipantID: "shop", DisplayName: "Shop", Role: channel.RoleSeller})
	if f := recvType(t, seller, channel.TypeConnectionStatus); f["connected"] != true {
		t.Errorf("connection_status = %v", f)
	}

	viewer := open(t, client, channel.Identity{LivestreamID: "ls1", ParticipantID: "v1", DisplayName: "Asha", Role: channel.RoleViewer})
	recvType(t, viewer, channel.TypeConnectionStatus)
	if f := recvType(t, seller, channel.TypeViewerJoined); f["user_name"] != "Asha" || f["viewer_count"] != 1.0 {
		t.Errorf("viewer_joined = %v", f)
	}

	sendFrame(t, viewer, channel.TypeChatSend, map[string]any{"message": "hello"})
	if f := recvType(t, seller, channel.TypeChatMessage); f["message"] != "hello" || f["user_id"] != "v1" {
		t.Errorf("chat_message = %v", f)
	}

	sendFrame(t, viewer, "dance", nil)
	if f := recvType(t, viewer, channel.TypeError); f["message"] == "" {
		t.Errorf("error frame = %v", f)
	}

	sendFrame(t, seller, channel.TypeBanViewer, map[string]any{"user_id": "v1"})
	recvType(t, seller, channel.TypeUserBanned)

	_, err := viewer.Recv()
	for err == nil {
		_, err = viewer.Recv()
	}
	if status.Code(err) != codes.PermissionDenied {
		t.Errorf("banned viewer stream error = %v, want PermissionDenied", err)
	}
}

func TestConnectWithoutIdentity(t *testing.T) {
	client := startHub(t)

	stream, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if _, err := stream.Recv(); status.Code(err) != codes.Unauthenticated {
		t.Errorf("Recv() error = %v, want Unauthenticated", err)
	}
}
