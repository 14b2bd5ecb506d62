package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
)

func TestRESTFetchCandlesRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.URL.Query().Get("timeframe") != "5m" || r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(candlesResponse{Candles: []models.Candle{
			{Timestamp: time.Unix(0, 0).UTC(), Open: 1, High: 2, Low: 1, Close: 2, Volume: 5},
		}})
	}))
	defer srv.Close()

	b := NewRESTBroker(RESTConfig{BaseURL: srv.URL + "/", APIKey: "key", Retries: 3}, nil)
	cs, err := b.FetchCandles(context.Background(), "MGC", domrepo.TF5m, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(cs) != 1 || calls.Load() != 2 {
		t.Fatalf("got %d candles after %d calls", len(cs), calls.Load())
	}
}

func TestRESTFetchCandlesUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := NewRESTBroker(RESTConfig{BaseURL: srv.URL, Retries: 2}, nil)
	_, err := b.FetchCandles(context.Background(), "MGC", domrepo.TF5m, 10)
	if !errors.Is(err, domrepo.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestRESTSubmitBracket(t *testing.T) {
	plan := models.OrderPlan{ID: "plan-1", Symbol: "MGC", Side: models.Buy, Quantity: 2, EntryPrice: 2050, StopPrice: 2048.5, TargetPrice: 2051.5}

	t.Run("accepted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req bracketRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if r.Header.Get("Idempotency-Key") != "plan-1" || req.Side != "BUY" || req.Quantity != 2 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(models.OrderSubmissionResult{OrderID: "b-1", Accepted: true})
		}))
		defer srv.Close()
		res, err := NewRESTBroker(RESTConfig{BaseURL: srv.URL}, nil).SubmitBracket(context.Background(), plan)
		if err != nil || !res.Accepted || res.OrderID != "b-1" {
			t.Fatalf("unexpected result %+v err=%v", res, err)
		}
	})

	t.Run("client error is a rejection", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "insufficient margin", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()
		res, err := NewRESTBroker(RESTConfig{BaseURL: srv.URL, Retries: 3}, nil).SubmitBracket(context.Background(), plan)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Accepted || res.Reason != "insufficient margin" {
			t.Fatalf("unexpected result %+v", res)
		}
	})

	t.Run("server error is a failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()
		if _, err := NewRESTBroker(RESTConfig{BaseURL: srv.URL}, nil).SubmitBracket(context.Background(), plan); err == nil {
			t.Fatalf("expected error")
		}
	})
}
