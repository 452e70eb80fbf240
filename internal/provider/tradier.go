package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/AustinnAI/volaris/internal/models"
	"github.com/AustinnAI/volaris/internal/util"
)

// markTick is the increment option marks are rounded to.
const markTick = 0.01

// APIError represents an API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TradierClient talks to the Tradier market-data API.
type TradierClient struct {
	client  *http.Client
	limiter *rate.Limiter
	apiKey  string
	baseURL string
	now     func() time.Time
}

// Ensure TradierClient implements Provider at compile time.
var _ Provider = (*TradierClient)(nil)

// NewTradierClient creates a Tradier client. A non-positive ratePerSec
// disables client-side rate limiting.
func NewTradierClient(apiKey, baseURL string, timeout time.Duration, ratePerSec float64) *TradierClient {
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return &TradierClient{
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		apiKey:  apiKey,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// WithHTTPClient replaces the HTTP client, for tests against httptest servers.
func (t *TradierClient) WithHTTPClient(c *http.Client) *TradierClient {
	if c != nil {
		t.client = c
	}
	return t
}

// WithClock replaces the time source used for DTE computation.
func (t *TradierClient) WithClock(now func() time.Time) *TradierClient {
	if now != nil {
		t.now = now
	}
	return t
}

// Handle single-object vs array responses from Tradier.
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[quoteItem] `json:"quote"`
	} `json:"quotes"`
}

type quoteItem struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	PrevClose float64 `json:"prevclose"`
}

type expirationsResponse struct {
	Expirations struct {
		Date []string `json:"date"`
	} `json:"expirations"`
}

type chainResponse struct {
	Options struct {
		Option singleOrArray[chainOption] `json:"option"`
	} `json:"options"`
}

type chainOption struct {
	Greeks         *chainGreeks `json:"greeks,omitempty"`
	Symbol         string       `json:"symbol"`
	OptionType     string       `json:"option_type"`
	ExpirationDate string       `json:"expiration_date"`
	Bid            float64      `json:"bid"`
	Ask            float64      `json:"ask"`
	Strike         float64      `json:"strike"`
	Volume         int64        `json:"volume"`
	OpenInterest   int64        `json:"open_interest"`
}

type chainGreeks struct {
	Delta  float64 `json:"delta"`
	MidIV  float64 `json:"mid_iv"`
	SmvVol float64 `json:"smv_vol"`
}

// GetQuote retrieves the current quote for a symbol.
func (t *TradierClient) GetQuote(symbol string) (*Quote, error) {
	return t.GetQuoteCtx(context.Background(), symbol)
}

// GetQuoteCtx retrieves the current quote for a symbol with context support.
func (t *TradierClient) GetQuoteCtx(ctx context.Context, symbol string) (*Quote, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()

	var response quotesResponse
	if err := t.makeRequestCtx(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	quotes := response.Quotes.Quote
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: no quote for symbol %s", models.ErrNoData, symbol)
	}

	q := quotes[0]
	return &Quote{
		Symbol:    q.Symbol,
		Last:      q.Last,
		Bid:       q.Bid,
		Ask:       q.Ask,
		PrevClose: q.PrevClose,
	}, nil
}

// GetExpirations retrieves available expiration dates for options on a symbol.
func (t *TradierClient) GetExpirations(symbol string) ([]string, error) {
	return t.GetExpirationsCtx(context.Background(), symbol)
}

// GetExpirationsCtx retrieves available expiration dates with context support.
func (t *TradierClient) GetExpirationsCtx(ctx context.Context, symbol string) ([]string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("includeAllRoots", "true")
	params.Set("strikes", "false")
	endpoint := t.baseURL + "/markets/options/expirations?" + params.Encode()

	var response expirationsResponse
	if err := t.makeRequestCtx(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	return response.Expirations.Date, nil
}

// GetChainSnapshot retrieves and normalizes one expiration's option chain.
func (t *TradierClient) GetChainSnapshot(symbol, expiration string) (*ChainResult, error) {
	return t.GetChainSnapshotCtx(context.Background(), symbol, expiration)
}

// GetChainSnapshotCtx retrieves and normalizes one expiration's option chain
// with context support. The quote is fetched alongside the chain because the
// chain payload carries no underlying price.
func (t *TradierClient) GetChainSnapshotCtx(ctx context.Context, symbol, expiration string) (*ChainResult, error) {
	quote, err := t.GetQuoteCtx(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetching quote for chain: %w", err)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expiration)
	params.Set("greeks", "true")
	endpoint := t.baseURL + "/markets/options/chains?" + params.Encode()

	var response chainResponse
	if err := t.makeRequestCtx(ctx, endpoint, &response); err != nil {
		return nil, err
	}
	if len(response.Options.Option) == 0 {
		return nil, fmt.Errorf("%w: no chain for %s exp %s", models.ErrNoData, symbol, expiration)
	}

	asOf := t.now().UTC()
	dte, err := DaysUntil(asOf, expiration)
	if err != nil {
		return nil, fmt.Errorf("parsing expiration %q: %w", expiration, err)
	}

	snapshot := &models.ChainSnapshot{
		ID:              uuid.New().String(),
		Symbol:          symbol,
		Expiration:      expiration,
		DTE:             dte,
		UnderlyingPrice: quote.Price(),
		AsOf:            asOf,
		Contracts:       make([]models.OptionContract, 0, len(response.Options.Option)),
	}

	for _, opt := range response.Options.Option {
		optionType, err := models.ParseOptionType(opt.OptionType)
		if err != nil {
			continue // skip exotic rows rather than failing the snapshot
		}

		mark := util.RoundToTick((opt.Bid+opt.Ask)/2, markTick)

		var delta *float64
		if opt.Greeks != nil {
			d := opt.Greeks.Delta
			delta = &d
		}

		snapshot.Contracts = append(snapshot.Contracts, models.OptionContract{
			Strike:       opt.Strike,
			OptionType:   optionType,
			Bid:          opt.Bid,
			Ask:          opt.Ask,
			Mark:         mark,
			Delta:        delta,
			Volume:       opt.Volume,
			OpenInterest: opt.OpenInterest,
		})
	}

	return &ChainResult{Snapshot: snapshot, Quote: quote}, nil
}

// GetImpliedVolatility returns an ATM implied-volatility reading for a symbol.
func (t *TradierClient) GetImpliedVolatility(symbol string) (float64, error) {
	return t.GetImpliedVolatilityCtx(context.Background(), symbol)
}

// GetImpliedVolatilityCtx derives an IV reading from the nearest expiration's
// chain greeks: the average mid IV of contracts that report one.
func (t *TradierClient) GetImpliedVolatilityCtx(ctx context.Context, symbol string) (float64, error) {
	expirations, err := t.GetExpirationsCtx(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if len(expirations) == 0 {
		return 0, fmt.Errorf("%w: no expirations for %s", models.ErrNoData, symbol)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expirations[0])
	params.Set("greeks", "true")
	endpoint := t.baseURL + "/markets/options/chains?" + params.Encode()

	var response chainResponse
	if err := t.makeRequestCtx(ctx, endpoint, &response); err != nil {
		return 0, err
	}

	var sum float64
	var n int
	for _, opt := range response.Options.Option {
		if opt.Greeks != nil && opt.Greeks.MidIV > 0 {
			sum += opt.Greeks.MidIV
			n++
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no IV data for %s", models.ErrNoData, symbol)
	}
	return sum / float64(n), nil
}

func (t *TradierClient) makeRequestCtx(ctx context.Context, endpoint string, response interface{}) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}

	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "volaris/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			// Log error but don't fail the operation
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> failed to read error body", endpoint)}
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s (retry-after: %s)", endpoint, string(body), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s", endpoint, string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
