package adaptor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ponyo877/livebid/api"
	"github.com/ponyo877/livebid/logger"
	"github.com/ponyo877/livebid/server/domain"
	"github.com/ponyo877/livebid/server/repository"
	"github.com/ponyo877/livebid/server/usecase"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := repository.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := logger.Discard()
	rp := repository.NewRepository(db)
	sm := domain.NewStreamManager()
	hub := usecase.NewStreamUsecase(rp, sm, usecase.HubConfig{}, log)
	uc := usecase.NewUsecase(rp, NewLogPublisher(log), log)

	srv := httptest.NewServer(NewEcho(NewHandler(uc, hub, log)))
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		sm.Cleanup()
	})
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestRESTFlow(t *testing.T) {
	srv := newTestServer(t)

	if code := call(t, srv, http.MethodGet, "/healthz", "", nil); code != http.StatusOK {
		t.Fatalf("healthz = %d", code)
	}

	var ls api.Livestream
	if code := call(t, srv, http.MethodPost, "/v1/livestreams", `{"title":"Sunday sale","credits":1}`, &ls); code != http.StatusCreated {
		t.Fatalf("create livestream = %d", code)
	}
	base := "/v1/livestreams/" + ls.ID

	var mug api.Product
	if code := call(t, srv, http.MethodPost, base+"/products", `{"name":"Mug","price":100}`, &mug); code != http.StatusCreated {
		t.Fatalf("add product = %d", code)
	}

	var round api.StartBiddingResponse
	steps := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
		out    any
	}{
		{name: "unknown livestream", method: http.MethodGet, path: "/v1/livestreams/nope", want: http.StatusNotFound},
		{name: "bad body", method: http.MethodPost, path: "/v1/livestreams", body: `{"title":`, want: http.StatusBadRequest},
		{name: "blank title", method: http.MethodPost, path: "/v1/livestreams", body: `{"title":""}`, want: http.StatusBadRequest},
		{name: "bidding before start", method: http.MethodPost, path: base + "/biddings", body: `{"product":"` + mug.ID + `","timer_duration":60}`, want: http.StatusConflict},
		{name: "start", method: http.MethodPost, path: base + "/start", want: http.StatusOK},
		{name: "start again", method: http.MethodPost, path: base + "/start", want: http.StatusOK},
		{name: "short round", method: http.MethodPost, path: base + "/biddings", body: `{"product":"` + mug.ID + `","timer_duration":5}`, want: http.StatusBadRequest},
		{name: "round", method: http.MethodPost, path: base + "/biddings", body: `{"product":"` + mug.ID + `","timer_duration":60}`, want: http.StatusCreated, out: &round},
		{name: "list products", method: http.MethodGet, path: base + "/products", want: http.StatusOK},
		{name: "messages", method: http.MethodGet, path: base + "/messages?q=hi", want: http.StatusOK},
		{name: "bad limit", method: http.MethodGet, path: base + "/messages?limit=x", want: http.StatusBadRequest},
		{name: "hub stats", method: http.MethodGet, path: "/v1/hub/stats", want: http.StatusOK},
	}
	for _, tt := range steps {
		t.Run(tt.name, func(t *testing.T) {
			if code := call(t, srv, tt.method, tt.path, tt.body, tt.out); code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, code, tt.want)
			}
		})
	}

	var ack api.Ack
	if code := call(t, srv, http.MethodPost, "/v1/biddings/"+round.ID+"/end", `{"winner_id":"v1","winner_name":"Asha","amount":750}`, &ack); code != http.StatusOK || !ack.OK {
		t.Errorf("end bidding = %d, %+v", code, ack)
	}
	if code := call(t, srv, http.MethodPost, "/v1/biddings/missing/end", `{}`, nil); code != http.StatusNotFound {
		t.Errorf("end unknown bidding = %d, want 404", code)
	}

	var credits api.CreditDeductionResponse
	call(t, srv, http.MethodPost, base+"/credits/deduct", "", &credits)
	if !credits.CreditDeducted || credits.RemainingCredits != 0 || credits.TotalCreditsConsumed != 1 {
		t.Errorf("deduct = %+v", credits)
	}

	var ended api.Livestream
	if code := call(t, srv, http.MethodPost, base+"/end", "", &ended); code != http.StatusOK || ended.Status != api.StatusEnded {
		t.Errorf("end livestream = %d, %+v", code, ended)
	}
}

func TestRESTInsufficientCredits(t *testing.T) {
	srv := newTestServer(t)

	var ls api.Livestream
	call(t, srv, http.MethodPost, "/v1/livestreams", `{"title":"empty","credits":0}`, &ls)

	var body api.ErrorResponse
	if code := call(t, srv, http.MethodPost, "/v1/livestreams/"+ls.ID+"/start", "", &body); code != http.StatusConflict {
		t.Errorf("start = %d, want 409", code)
	}
	if !strings.Contains(body.Error, domain.ErrInsufficientCredits.Error()) {
		t.Errorf("error body = %q", body.Error)
	}
}
