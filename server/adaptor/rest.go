package adaptor

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/ponyo877/livebid/api"
	"github.com/ponyo877/livebid/server/domain"
	"github.com/ponyo877/livebid/server/usecase"
)

type Handler struct {
	uc     Usecase
	stream StreamUsecase
	log    *slog.Logger
}

func NewHandler(uc Usecase, stream StreamUsecase, log *slog.Logger) *Handler {
	return &Handler{uc: uc, stream: stream, log: log.With("component", "rest")}
}

// NewEcho builds the REST backend with its routes and middleware.
func NewEcho(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			h.log.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			)
			return nil
		},
	}))
	h.Register(e)
	return e
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/v1/hub/stats", h.HubStats)

	g := e.Group("/v1/livestreams")
	g.POST("", h.CreateLivestream)
	g.GET("/:id", h.GetLivestream)
	g.POST("/:id/start", h.StartLivestream)
	g.POST("/:id/end", h.EndLivestream)
	g.POST("/:id/products", h.AddProduct)
	g.GET("/:id/products", h.ListProducts)
	g.POST("/:id/biddings", h.StartBidding)
	g.POST("/:id/credits/deduct", h.DeductCredit)
	g.GET("/:id/messages", h.ListMessages)

	e.POST("/v1/biddings/:id/end", h.EndBidding)
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (h *Handler) HubStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.stream.GetStreamStats())
}

func (h *Handler) CreateLivestream(c echo.Context) error {
	var body api.CreateLivestreamRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
	}
	ls, err := h.uc.CreateLivestream(c.Request().Context(), body.Title, body.Credits)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, toAPILivestream(ls))
}

func (h *Handler) GetLivestream(c echo.Context) error {
	ls, err := h.uc.GetLivestream(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toAPILivestream(ls))
}

func (h *Handler) StartLivestream(c echo.Context) error {
	ls, err := h.uc.StartLivestream(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toAPILivestream(ls))
}

func (h *Handler) EndLivestream(c echo.Context) error {
	ls, err := h.uc.EndLivestream(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toAPILivestream(ls))
}

func (h *Handler) AddProduct(c echo.Context) error {
	var body api.AddProductRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
	}
	p, err := h.uc.AddProduct(c.Request().Context(), c.Param("id"), body.Name, body.Price)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, toAPIProduct(p))
}

func (h *Handler) ListProducts(c echo.Context) error {
	products, err := h.uc.ListProducts(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	res := make([]api.Product, len(products))
	for i, p := range products {
		res[i] = toAPIProduct(p)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) StartBidding(c echo.Context) error {
	var body api.StartBiddingRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
	}
	b, err := h.uc.StartBidding(c.Request().Context(), c.Param("id"), body.Product, body.StartingPrice, body.TimerDuration)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, api.StartBiddingResponse{ID: b.ID})
}

func (h *Handler) EndBidding(c echo.Context) error {
	var body api.EndBiddingRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
	}
	_, err := h.uc.EndBidding(c.Request().Context(), c.Param("id"), usecase.BiddingResult{
		WinnerID:   body.WinnerID,
		WinnerName: body.WinnerName,
		Amount:     body.Amount,
		Reason:     body.Reason,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, api.Ack{OK: true})
}

func (h *Handler) DeductCredit(c echo.Context) error {
	d, err := h.uc.DeductCredit(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, api.CreditDeductionResponse{
		CreditDeducted:       d.Deducted,
		RemainingCredits:     d.RemainingCredits,
		TotalCreditsConsumed: d.TotalCreditsConsumed,
	})
}

func (h *Handler) ListMessages(c echo.Context) error {
	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid limit"})
		}
		limit = n
	}
	messages, err := h.uc.ListMessages(c.Request().Context(), c.Param("id"), c.QueryParam("q"), limit)
	if err != nil {
		return h.fail(c, err)
	}
	res := make([]api.Message, len(messages))
	for i, m := range messages {
		res[i] = api.Message{
			ID:          m.ID,
			SenderID:    m.SenderID,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			Content:     m.Content,
			CreatedAt:   m.CreatedAt,
		}
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInsufficientCredits):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.Path(), "error", err)
		return c.JSON(status, api.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(status, api.ErrorResponse{Error: err.Error()})
}

func toAPILivestream(ls domain.Livestream) api.Livestream {
	return api.Livestream{
		ID:                   ls.ID,
		Title:                ls.Title,
		Status:               string(ls.Status),
		CreditsBalance:       ls.CreditsBalance,
		TotalCreditsConsumed: ls.TotalCreditsConsumed,
		StartedAt:            ls.StartedAt,
		EndedAt:              ls.EndedAt,
		CreatedAt:            ls.CreatedAt,
	}
}

func toAPIProduct(p domain.Product) api.Product {
	return api.Product{
		ID:           p.ID,
		LivestreamID: p.LivestreamID,
		Name:         p.Name,
		Price:        p.Price,
	}
}
