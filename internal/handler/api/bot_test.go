package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
	"BlockTrader/pkg/http/middleware"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type fakeBot struct {
	running  bool
	last     *models.DecisionReport
	patterns []models.ScoredPattern
	scanErr  error
	scanTF   domrepo.Timeframe
	scanN    int
}

func (b *fakeBot) Status() models.BotStatus {
	return models.BotStatus{Symbol: "MGC", State: models.StateSnapshot{Running: b.running}}
}

func (b *fakeBot) LastReport() (models.DecisionReport, bool) {
	if b.last == nil {
		return models.DecisionReport{}, false
	}
	return *b.last, true
}

func (b *fakeBot) ScanPatterns(_ context.Context, tf domrepo.Timeframe, n int) ([]models.ScoredPattern, error) {
	b.scanTF, b.scanN = tf, n
	return b.patterns, b.scanErr
}

func (b *fakeBot) MinScore() float64 { return 7 }
func (b *fakeBot) Start()            { b.running = true }
func (b *fakeBot) Stop()             { b.running = false }

type fakeApplier struct {
	got []models.ExecutionEvent
	err error
}

func (a *fakeApplier) Apply(_ context.Context, ev models.ExecutionEvent) error {
	a.got = append(a.got, ev)
	return a.err
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func serve(t *testing.T, h *BotHandler, method, target, body string, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestLatestDecisionNotFoundBeforeFirstCycle(t *testing.T) {
	h := NewBotHandler(nil, &fakeBot{}, &fakeApplier{}, nil)
	_, env := serve(t, h, http.MethodGet, "/api/decisions/latest", "", nil)
	if env.Status != http.StatusNotFound {
		t.Fatalf("status %d", env.Status)
	}

	bot := &fakeBot{last: &models.DecisionReport{ID: "r1", RejectionReason: models.ReasonNoPatterns}}
	h = NewBotHandler(nil, bot, &fakeApplier{}, nil)
	_, env = serve(t, h, http.MethodGet, "/api/decisions/latest", "", nil)
	var r models.DecisionReport
	if err := json.Unmarshal(env.Data, &r); err != nil || r.ID != "r1" {
		t.Fatalf("unexpected report %s (%v)", env.Data, err)
	}
}

func TestPatternsCountsHighQuality(t *testing.T) {
	bot := &fakeBot{patterns: []models.ScoredPattern{{Score: 8}, {Score: 6.5}, {Score: 7}}}
	h := NewBotHandler(nil, bot, &fakeApplier{}, nil)
	_, env := serve(t, h, http.MethodGet, "/api/patterns?tf=5m&count=60", "", nil)
	if env.Status != http.StatusOK {
		t.Fatalf("status %d: %s", env.Status, env.Data)
	}
	var res patternsResponse
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.HighQuality != 2 || len(res.Patterns) != 3 || res.Timeframe != "5m" {
		t.Fatalf("unexpected response %+v", res)
	}
	if bot.scanTF != domrepo.TF5m || bot.scanN != 60 {
		t.Fatalf("scan called with %s/%d", bot.scanTF, bot.scanN)
	}
}

func TestPatternsDefaultsAndValidation(t *testing.T) {
	bot := &fakeBot{}
	h := NewBotHandler(nil, bot, &fakeApplier{}, nil)
	_, env := serve(t, h, http.MethodGet, "/api/patterns", "", nil)
	if env.Status != http.StatusOK || bot.scanTF != domrepo.TF15m || bot.scanN != 100 {
		t.Fatalf("defaults not applied: status %d tf %s n %d", env.Status, bot.scanTF, bot.scanN)
	}
	_, env = serve(t, h, http.MethodGet, "/api/patterns?tf=4h", "", nil)
	if env.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported tf, got %d", env.Status)
	}
}

func TestPatternsDataUnavailable(t *testing.T) {
	bot := &fakeBot{scanErr: fmt.Errorf("fetch 15m: %w", domrepo.ErrDataUnavailable)}
	h := NewBotHandler(nil, bot, &fakeApplier{}, nil)
	_, env := serve(t, h, http.MethodGet, "/api/patterns", "", nil)
	if env.Status != http.StatusServiceUnavailable {
		t.Fatalf("status %d", env.Status)
	}
}

func TestControlRoutesRequireToken(t *testing.T) {
	secret := []byte("s3cret")
	auth := middleware.JWTAuth(middleware.JWTConfig{Secret: secret, Issuer: "blocktrader"})
	bot := &fakeBot{running: true}
	h := NewBotHandler(nil, bot, &fakeApplier{}, auth)

	rec, _ := serve(t, h, http.MethodPost, "/api/bot/stop", "", nil)
	if rec.Code != http.StatusUnauthorized || !bot.running {
		t.Fatalf("unauthenticated stop: code %d running %v", rec.Code, bot.running)
	}

	tok, err := middleware.IssueToken(secret, "blocktrader", "ops", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rec, env := serve(t, h, http.MethodPost, "/api/bot/stop", "", map[string]string{echo.HeaderAuthorization: "Bearer " + tok})
	if rec.Code != http.StatusOK || env.Status != http.StatusOK || bot.running {
		t.Fatalf("authenticated stop: code %d running %v", rec.Code, bot.running)
	}

	expired, _ := middleware.IssueToken(secret, "blocktrader", "ops", time.Minute, time.Now().Add(-time.Hour))
	rec, _ = serve(t, h, http.MethodPost, "/api/bot/start", "", map[string]string{echo.HeaderAuthorization: "Bearer " + expired})
	if rec.Code != http.StatusUnauthorized || bot.running {
		t.Fatalf("expired token accepted: code %d", rec.Code)
	}
}

func TestExecutionEndpoint(t *testing.T) {
	app := &fakeApplier{}
	h := NewBotHandler(nil, &fakeBot{}, app, nil)
	_, env := serve(t, h, http.MethodPost, "/api/executions",
		`{"type":"position_closed","order_id":"o1","side":"BUY","quantity":2,"exit_price":2065,"realized_pnl":100}`, nil)
	if env.Status != http.StatusCreated {
		t.Fatalf("status %d: %s", env.Status, env.Data)
	}
	if len(app.got) != 1 || app.got[0].Type != models.EventPositionClosed || app.got[0].RealizedPnL != 100 {
		t.Fatalf("unexpected applied events %+v", app.got)
	}

	_, env = serve(t, h, http.MethodPost, "/api/executions", `{"type":"teleport"}`, nil)
	if env.Status != http.StatusBadRequest || len(app.got) != 1 {
		t.Fatalf("invalid type should be rejected before apply, status %d", env.Status)
	}

	app.err = errors.New("boom")
	_, env = serve(t, h, http.MethodPost, "/api/executions", `{"type":"daily_reset"}`, nil)
	if env.Status != http.StatusBadRequest {
		t.Fatalf("apply error should map to 400, got %d", env.Status)
	}
}

func TestReportHubBroadcasts(t *testing.T) {
	hub := NewReportHub(nil)
	_ = hub.Report(context.Background(), models.DecisionReport{ID: "first"})

	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/decisions"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() models.DecisionReport {
		t.Helper()
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var r models.DecisionReport
		if err := json.Unmarshal(b, &r); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return r
	}
	if r := read(); r.ID != "first" {
		t.Fatalf("expected latest report on connect, got %q", r.ID)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	_ = hub.Report(context.Background(), models.DecisionReport{ID: "second"})
	if r := read(); r.ID != "second" {
		t.Fatalf("expected broadcast, got %q", r.ID)
	}
}
