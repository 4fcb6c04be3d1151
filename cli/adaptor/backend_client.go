package adaptor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ponyo877/livebid/api"
	"github.com/ponyo877/livebid/cli/domain"
)

// BackendClient calls the livestream REST backend.
type BackendClient struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func NewBackendClient(baseURL string, timeout time.Duration, log *slog.Logger) *BackendClient {
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.With("component", "backend"),
	}
}

func (b *BackendClient) CreateLivestream(ctx context.Context, title string, credits int) (domain.Livestream, error) {
	var res api.Livestream
	req := api.CreateLivestreamRequest{Title: title, Credits: credits}
	if err := b.do(ctx, http.MethodPost, "/v1/livestreams", req, &res); err != nil {
		return domain.Livestream{}, fmt.Errorf("create livestream: %w", err)
	}
	return toDomainLivestream(res), nil
}

func (b *BackendClient) GetLivestream(ctx context.Context, livestreamID string) (domain.Livestream, error) {
	var res api.Livestream
	if err := b.do(ctx, http.MethodGet, "/v1/livestreams/"+url.PathEscape(livestreamID), nil, &res); err != nil {
		return domain.Livestream{}, fmt.Errorf("get livestream %s: %w", livestreamID, err)
	}
	return toDomainLivestream(res), nil
}

func (b *BackendClient) AddProduct(ctx context.Context, livestreamID, name string, price float64) (domain.Product, error) {
	var res api.Product
	req := api.AddProductRequest{Name: name, Price: price}
	if err := b.do(ctx, http.MethodPost, "/v1/livestreams/"+url.PathEscape(livestreamID)+"/products", req, &res); err != nil {
		return domain.Product{}, fmt.Errorf("add product: %w", err)
	}
	return domain.Product{ID: res.ID, Name: res.Name, Price: res.Price}, nil
}

func (b *BackendClient) ListProducts(ctx context.Context, livestreamID string) ([]domain.Product, error) {
	var res []api.Product
	if err := b.do(ctx, http.MethodGet, "/v1/livestreams/"+url.PathEscape(livestreamID)+"/products", nil, &res); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	products := make([]domain.Product, len(res))
	for i, p := range res {
		products[i] = domain.Product{ID: p.ID, Name: p.Name, Price: p.Price}
	}
	return products, nil
}

func (b *BackendClient) StartLivestream(ctx context.Context, livestreamID string) error {
	if err := b.do(ctx, http.MethodPost, "/v1/livestreams/"+url.PathEscape(livestreamID)+"/start", nil, nil); err != nil {
		return fmt.Errorf("start livestream %s: %w", livestreamID, err)
	}
	return nil
}

func (b *BackendClient) EndLivestream(ctx context.Context, livestreamID string) error {
	if err := b.do(ctx, http.MethodPost, "/v1/livestreams/"+url.PathEscape(livestreamID)+"/end", nil, nil); err != nil {
		return fmt.Errorf("end livestream %s: %w", livestreamID, err)
	}
	return nil
}

func (b *BackendClient) StartBidding(ctx context.Context, livestreamID string, req api.StartBiddingRequest) (string, error) {
	var res api.StartBiddingResponse
	if err := b.do(ctx, http.MethodPost, "/v1/livestreams/"+url.PathEscape(livestreamID)+"/biddings", req, &res); err != nil {
		return "", fmt.Errorf("start bidding: %w", err)
	}
	return res.ID, nil
}

func (b *BackendClient) EndBidding(ctx context.Context, roundID string, req api.EndBiddingRequest) error {
	if err := b.do(ctx, http.MethodPost, "/v1/biddings/"+url.PathEscape(roundID)+"/end", req, nil); err != nil {
		return fmt.Errorf("end bidding %s: %w", roundID, err)
	}
	return nil
}

func (b *BackendClient) ProcessCreditDeduction(ctx context.Context, livestreamID string) (domain.CreditTick, error) {
	var res api.CreditDeductionResponse
	if err := b.do(ctx, http.MethodPost, "/v1/livestreams/"+url.PathEscape(livestreamID)+"/credits/deduct", nil, &res); err != nil {
		return domain.CreditTick{}, fmt.Errorf("process credit deduction: %w", err)
	}
	return domain.CreditTick{
		Deducted:         res.CreditDeducted,
		RemainingCredits: res.RemainingCredits,
		TotalConsumed:    res.TotalCreditsConsumed,
	}, nil
}

func (b *BackendClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var body api.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}
	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrTransient, msg)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrConflict, msg)
	default:
		return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
	}
}

func toDomainLivestream(l api.Livestream) domain.Livestream {
	return domain.Livestream{
		ID:               l.ID,
		Title:            l.Title,
		Status:           domain.ParseLivestreamStatus(l.Status),
		CreditsConsumed:  l.TotalCreditsConsumed,
		RemainingCredits: l.CreditsBalance,
	}
}
