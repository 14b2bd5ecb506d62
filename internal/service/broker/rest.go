package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
	xhttp "BlockTrader/pkg/http"
	"BlockTrader/pkg/logger"
)

type RESTConfig struct {
	BaseURL   string
	APIKey    string
	AccountID string
	Timeout   time.Duration
	Retries   int
}

// RESTBroker talks to an HTTP broker gateway for candles and bracket orders.
type RESTBroker struct {
	cfg    RESTConfig
	client *xhttp.Client
	log    *logger.Logger
}

func NewRESTBroker(cfg RESTConfig, log *logger.Logger, opts ...xhttp.ClientOption) *RESTBroker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	opts = append([]xhttp.ClientOption{xhttp.WithTimeout(cfg.Timeout)}, opts...)
	return &RESTBroker{cfg: cfg, client: xhttp.NewClient(opts...), log: log}
}

func (b *RESTBroker) headers(extra map[string]string) map[string]string {
	h := map[string]string{"Accept": "application/json"}
	if b.cfg.APIKey != "" {
		h["Authorization"] = "Bearer " + b.cfg.APIKey
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func retryable(err error) bool {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// do sends with up to Retries attempts for transient failures.
func (b *RESTBroker) do(ctx context.Context, opts *xhttp.RequestOptions, dest interface{}) error {
	var err error
	for i := 1; i <= b.cfg.Retries; i++ {
		err = b.client.SendAndParse(ctx, opts, dest)
		if err == nil || !retryable(err) || i == b.cfg.Retries {
			return err
		}
		b.log.Debug("broker request retry", logger.String("url", opts.URL), logger.Int("attempt", i), logger.Error(err))
		select {
		case <-time.After(time.Duration(i) * 100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

type candlesResponse struct {
	Candles []models.Candle `json:"candles"`
}

func (b *RESTBroker) FetchCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) ([]models.Candle, error) {
	var resp candlesResponse
	err := b.do(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     b.cfg.BaseURL + "/v1/candles",
		Headers: b.headers(nil),
		QueryParams: map[string][]string{
			"symbol":    {symbol},
			"timeframe": {string(tf)},
			"count":     {strconv.Itoa(count)},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domrepo.ErrDataUnavailable, err)
	}
	return resp.Candles, nil
}

type bracketRequest struct {
	AccountID   string  `json:"account_id,omitempty"`
	ClientID    string  `json:"client_order_id"`
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Quantity    int     `json:"quantity"`
	EntryPrice  float64 `json:"entry_price"`
	StopPrice   float64 `json:"stop_price"`
	TargetPrice float64 `json:"target_price"`
}

// SubmitBracket posts the plan. A 4xx answer is a rejection, not an error.
// The plan id doubles as idempotency key so retries cannot double-submit.
func (b *RESTBroker) SubmitBracket(ctx context.Context, plan models.OrderPlan) (models.OrderSubmissionResult, error) {
	var res models.OrderSubmissionResult
	err := b.do(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     b.cfg.BaseURL + "/v1/orders/bracket",
		Headers: b.headers(map[string]string{"Content-Type": "application/json", "Idempotency-Key": plan.ID}),
		Body: bracketRequest{
			AccountID:   b.cfg.AccountID,
			ClientID:    plan.ID,
			Symbol:      plan.Symbol,
			Side:        string(plan.Side),
			Quantity:    plan.Quantity,
			EntryPrice:  plan.EntryPrice,
			StopPrice:   plan.StopPrice,
			TargetPrice: plan.TargetPrice,
		},
	}, &res)
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return models.OrderSubmissionResult{Accepted: false, Reason: se.Body}, nil
		}
		return models.OrderSubmissionResult{}, fmt.Errorf("submit bracket: %w", err)
	}
	if !res.Accepted && res.Reason == "" {
		res.Reason = domrepo.ErrOrderRejected.Error()
	}
	return res, nil
}

var (
	_ domrepo.MarketDataSource = (*RESTBroker)(nil)
	_ domrepo.OrderSink        = (*RESTBroker)(nil)
)
