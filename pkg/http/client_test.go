package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendAndParseEncodesJSONBody(t *testing.T) {
	var gotType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`{"order_id":"ord-9"}`))
	}))
	defer srv.Close()

	var out struct {
		OrderID string `json:"order_id"`
	}
	err := NewClient().SendAndParse(context.Background(), &RequestOptions{
		Method: MethodPost,
		URL:    srv.URL,
		Body:   map[string]string{"symbol": "MGC", "side": "BUY"},
	}, &out)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotType != "application/json" || gotBody["symbol"] != "MGC" || gotBody["side"] != "BUY" {
		t.Fatalf("unexpected request: type %q body %v", gotType, gotBody)
	}
	if out.OrderID != "ord-9" {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestSendAndParseStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewClient().SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable || se.Body != "busy" || !se.Temporary() {
		t.Fatalf("expected temporary status error, got %v", err)
	}
}
