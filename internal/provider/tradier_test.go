package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AustinnAI/volaris/internal/models"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Status: 429, Body: "too many requests"}
	want := "API error 429: too many requests"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func newTestClient(handler http.HandlerFunc) (*TradierClient, *httptest.Server) {
	s := httptest.NewServer(handler)
	c := NewTradierClient("test-key", s.URL, 5*time.Second, 0)
	return c, s
}

func TestGetQuote_SingleAndArrayAndEmpty(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		want    float64
	}{
		{
			name:    "single object",
			payload: `{"quotes":{"quote":{"symbol":"SPY","last":450.12,"bid":450.10,"ask":450.14,"prevclose":448.90}}}`,
			want:    450.12,
		},
		{
			name:    "array takes the first",
			payload: `{"quotes":{"quote":[{"symbol":"SPY","last":450.12},{"symbol":"SPY2","last":1}]}}`,
			want:    450.12,
		},
		{
			name:    "empty is no data",
			payload: `{"quotes":{"quote":null}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer test-key" {
					t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.payload))
			})
			defer server.Close()

			quote, err := client.GetQuote("SPY")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if quote.Last != tt.want {
				t.Errorf("Last = %v, want %v", quote.Last, tt.want)
			}
		})
	}
}

func TestGetExpirations(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"expirations":{"date":["2025-06-20","2025-06-27"]}}`))
	})
	defer server.Close()

	dates, err := client.GetExpirations("SPY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dates) != 2 || dates[0] != "2025-06-20" {
		t.Errorf("unexpected expirations: %v", dates)
	}
}

func TestGetChainSnapshot_NormalizesContracts(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "/markets/quotes") {
			_, _ = w.Write([]byte(`{"quotes":{"quote":{"symbol":"SPY","last":450.00}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"options":{"option":[
			{"symbol":"SPY250620C00450000","option_type":"call","expiration_date":"2025-06-20",
			 "bid":2.20,"ask":2.31,"strike":450,"volume":1200,"open_interest":5400,
			 "greeks":{"delta":0.51,"mid_iv":0.21}},
			{"symbol":"SPY250620P00450000","option_type":"put","expiration_date":"2025-06-20",
			 "bid":2.05,"ask":2.15,"strike":450,"volume":900,"open_interest":4100}
		]}}`))
	})
	defer server.Close()

	client.WithClock(func() time.Time { return time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC) })

	result, err := client.GetChainSnapshot("SPY", "2025-06-20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := result.Snapshot
	if snap.DTE != 18 {
		t.Errorf("DTE = %d, want 18", snap.DTE)
	}
	if snap.UnderlyingPrice != 450.00 {
		t.Errorf("UnderlyingPrice = %v, want 450", snap.UnderlyingPrice)
	}
	if len(snap.Contracts) != 2 {
		t.Fatalf("got %d contracts, want 2", len(snap.Contracts))
	}

	call := snap.Contracts[0]
	if call.OptionType != models.OptionTypeCall {
		t.Errorf("first contract type = %s, want call", call.OptionType)
	}
	// Mark is the bid/ask midpoint rounded to the penny: (2.20+2.31)/2 = 2.255 -> 2.26.
	if call.Mark != 2.26 {
		t.Errorf("Mark = %v, want 2.26", call.Mark)
	}
	if call.Delta == nil || *call.Delta != 0.51 {
		t.Errorf("Delta = %v, want 0.51", call.Delta)
	}

	put := snap.Contracts[1]
	if put.Delta != nil {
		t.Errorf("put without greeks should have nil delta, got %v", *put.Delta)
	}
}

func TestGetChainSnapshot_EmptyChainIsNoData(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "/markets/quotes") {
			_, _ = w.Write([]byte(`{"quotes":{"quote":{"symbol":"SPY","last":450.00}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"options":{"option":null}}`))
	})
	defer server.Close()

	_, err := client.GetChainSnapshot("SPY", "2025-06-20")
	if err == nil {
		t.Fatal("expected error for empty chain, got nil")
	}
}

func TestMakeRequestCtx_Non2xxReturnsAPIError(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream sad"))
	})
	defer server.Close()

	var response quotesResponse
	err := client.makeRequestCtx(context.Background(), server.URL+"/markets/quotes", &response)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", apiErr.Status)
	}
	if !strings.Contains(apiErr.Body, "upstream sad") {
		t.Errorf("Body should carry the upstream payload, got %q", apiErr.Body)
	}
}

func TestQuotePriceFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		quote Quote
		want  float64
	}{
		{"last trade wins", Quote{Last: 450.12, Bid: 450, Ask: 451, PrevClose: 440}, 450.12},
		{"midpoint when no last", Quote{Bid: 450, Ask: 451, PrevClose: 440}, 450.5},
		{"previous close as last resort", Quote{PrevClose: 440}, 440},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.quote.Price(); got != tt.want {
				t.Errorf("Price() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)

	got, err := DaysUntil(now, "2025-07-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 30 {
		t.Errorf("DaysUntil = %d, want 30", got)
	}

	if _, err := DaysUntil(now, "not-a-date"); err == nil {
		t.Error("expected parse error, got nil")
	}
}

func TestCalculateIVRank(t *testing.T) {
	tests := []struct {
		name       string
		currentIV  float64
		historical []float64
		want       float64
	}{
		{"midpoint of range", 0.20, []float64{0.10, 0.30}, 50},
		{"at period low", 0.10, []float64{0.10, 0.30}, 0},
		{"at period high", 0.30, []float64{0.10, 0.30}, 100},
		{"above range clamps", 0.40, []float64{0.10, 0.30}, 100},
		{"below range clamps", 0.05, []float64{0.10, 0.30}, 0},
		{"flat history", 0.20, []float64{0.20, 0.20}, 0},
		{"empty history", 0.20, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateIVRank(tt.currentIV, tt.historical); got != tt.want {
				t.Errorf("CalculateIVRank = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMockProviderChain(t *testing.T) {
	m := NewMockProvider().WithClock(func() time.Time {
		return time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	})
	m.Spots["QQQ"] = 380

	result, err := m.GetChainSnapshot("QQQ", "2025-07-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := result.Snapshot
	if snap.DTE != 30 {
		t.Errorf("DTE = %d, want 30", snap.DTE)
	}
	if snap.UnderlyingPrice != 380 {
		t.Errorf("UnderlyingPrice = %v, want 380", snap.UnderlyingPrice)
	}
	if len(snap.Contracts) == 0 {
		t.Fatal("expected synthetic contracts")
	}

	// Expired request is explicit no-data, not an empty snapshot.
	if _, err := m.GetChainSnapshot("QQQ", "2025-06-01"); err == nil {
		t.Error("expected no-data error for past expiration")
	}
}
