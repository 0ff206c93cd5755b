// Package rest implements the venue adapter for exchanges speaking the
// standard REST API shape: JSON over HTTPS with either HMAC credentials
// or, for dex-style venues, a secp256k1 request signature.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/crypto"
	"github.com/DecentralizedMoney/matreshka/internal/domain"
	"github.com/DecentralizedMoney/matreshka/internal/venue"
)

// Config describes one REST venue connection.
type Config struct {
	VenueID  string
	Kind     domain.VenueKind
	BaseURL  string
	Fees     domain.FeeSchedule
	Limits   domain.TradeLimits
	HighRisk bool

	// HMAC authenticates spot/perpetual venues; Signer authenticates dex
	// venues. Exactly one should be set for trading; both may be nil for
	// market-data-only use.
	HMAC   *crypto.HMACAuth
	Signer *crypto.Signer

	Timeout time.Duration
}

// Client is a venue adapter over the standard exchange REST API.
type Client struct {
	cfg  Config
	desc domain.Venue
	http *http.Client
}

var _ venue.Adapter = (*Client)(nil)

// New creates a REST venue adapter.
func New(cfg Config) (*Client, error) {
	if cfg.VenueID == "" {
		return nil, errors.New("rest: venue ID must not be empty")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest: venue %s needs a base URL", cfg.VenueID)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg: cfg,
		desc: domain.Venue{
			ID:       cfg.VenueID,
			Kind:     cfg.Kind,
			Fees:     cfg.Fees,
			Limits:   cfg.Limits,
			HighRisk: cfg.HighRisk,
		},
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Venue returns the static descriptor.
func (c *Client) Venue() domain.Venue { return c.desc }

func (c *Client) FetchTicker(ctx context.Context, sym domain.Symbol) (domain.Ticker, error) {
	path := "/api/v1/ticker?symbol=" + url.QueryEscape(venueSymbol(sym))
	var resp tickerResponse
	if err := c.get(ctx, "fetch_ticker", path, &resp); err != nil {
		return domain.Ticker{}, err
	}

	t := domain.Ticker{
		Venue:      c.cfg.VenueID,
		Symbol:     sym,
		ObservedAt: msTime(resp.Timestamp),
	}
	var err error
	if t.Bid, err = parseDec(resp.Bid); err != nil {
		return domain.Ticker{}, c.badPayload("fetch_ticker", "bid", err)
	}
	if t.Ask, err = parseDec(resp.Ask); err != nil {
		return domain.Ticker{}, c.badPayload("fetch_ticker", "ask", err)
	}
	if t.Last, err = parseDec(resp.Last); err != nil {
		return domain.Ticker{}, c.badPayload("fetch_ticker", "last", err)
	}
	if t.Volume24h, err = parseDec(resp.Volume24h); err != nil {
		return domain.Ticker{}, c.badPayload("fetch_ticker", "volume24h", err)
	}
	if resp.Change24h != "" {
		if t.Change24h, err = parseDec(resp.Change24h); err != nil {
			return domain.Ticker{}, c.badPayload("fetch_ticker", "change24h", err)
		}
	}
	if err := t.Validate(); err != nil {
		return domain.Ticker{}, domain.NewVenueError(c.cfg.VenueID, "fetch_ticker", domain.VenueErrPermanent, err)
	}
	return t, nil
}

func (c *Client) FetchBook(ctx context.Context, sym domain.Symbol, depth int) (domain.Book, error) {
	path := fmt.Sprintf("/api/v1/depth?symbol=%s&limit=%d", url.QueryEscape(venueSymbol(sym)), depth)
	var resp depthResponse
	if err := c.get(ctx, "fetch_book", path, &resp); err != nil {
		return domain.Book{}, err
	}

	book := domain.Book{
		Venue:      c.cfg.VenueID,
		Symbol:     sym,
		ObservedAt: msTime(resp.Timestamp),
	}
	var err error
	if book.Bids, err = parseLevels(resp.Bids); err != nil {
		return domain.Book{}, c.badPayload("fetch_book", "bids", err)
	}
	if book.Asks, err = parseLevels(resp.Asks); err != nil {
		return domain.Book{}, c.badPayload("fetch_book", "asks", err)
	}
	if err := book.Validate(); err != nil {
		return domain.Book{}, domain.NewVenueError(c.cfg.VenueID, "fetch_book", domain.VenueErrPermanent, err)
	}
	return book, nil
}

func (c *Client) FetchBalances(ctx context.Context) ([]domain.Balance, error) {
	var resp balancesResponse
	if err := c.signedCall(ctx, "fetch_balances", http.MethodGet, "/api/v1/balances", nil, &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]domain.Balance, 0, len(resp.Balances))
	for _, e := range resp.Balances {
		free, err := parseDec(e.Free)
		if err != nil {
			return nil, c.badPayload("fetch_balances", "free", err)
		}
		locked, err := parseDec(e.Locked)
		if err != nil {
			return nil, c.badPayload("fetch_balances", "locked", err)
		}
		out = append(out, domain.Balance{
			Venue:     c.cfg.VenueID,
			Asset:     strings.ToUpper(e.Asset),
			Free:      free,
			Locked:    locked,
			UpdatedAt: now,
		})
	}
	return out, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderState, error) {
	body := orderBody{
		ClientOrderID: req.ClientOrderID,
		Symbol:        venueSymbol(req.Symbol),
		Side:          string(req.Side),
		Type:          string(req.Type),
		Amount:        req.Amount.String(),
	}
	if req.Type == domain.OrderTypeLimit {
		body.Price = req.Price.String()
	}

	var resp orderResponse
	if err := c.signedCall(ctx, "place_order", http.MethodPost, "/api/v1/orders", body, &resp); err != nil {
		return domain.OrderState{}, err
	}
	return c.orderState(resp, "place_order")
}

func (c *Client) CancelOrder(ctx context.Context, externalID string, sym domain.Symbol) error {
	path := fmt.Sprintf("/api/v1/orders/%s?symbol=%s", url.PathEscape(externalID), url.QueryEscape(venueSymbol(sym)))
	return c.signedCall(ctx, "cancel_order", http.MethodDelete, path, nil, nil)
}

func (c *Client) FetchOrder(ctx context.Context, externalID string, sym domain.Symbol) (domain.OrderState, error) {
	path := fmt.Sprintf("/api/v1/orders/%s?symbol=%s", url.PathEscape(externalID), url.QueryEscape(venueSymbol(sym)))
	var resp orderResponse
	if err := c.signedCall(ctx, "fetch_order", http.MethodGet, path, nil, &resp); err != nil {
		return domain.OrderState{}, err
	}
	return c.orderState(resp, "fetch_order")
}

func (c *Client) FundingRate(ctx context.Context, sym domain.Symbol) (domain.FundingRate, error) {
	if c.cfg.Kind != domain.VenueKindPerpetual && c.cfg.Kind != domain.VenueKindDEX {
		return domain.FundingRate{}, domain.ErrNotSupported
	}
	path := "/api/v1/funding?symbol=" + url.QueryEscape(venueSymbol(sym))
	var resp fundingResponse
	if err := c.get(ctx, "funding_rate", path, &resp); err != nil {
		return domain.FundingRate{}, err
	}

	rate, err := parseDec(resp.Rate)
	if err != nil {
		return domain.FundingRate{}, c.badPayload("funding_rate", "rate", err)
	}
	iv := time.Duration(resp.IntervalHours) * time.Hour
	if iv <= 0 {
		iv = 8 * time.Hour
	}
	return domain.FundingRate{
		Venue:    c.cfg.VenueID,
		Symbol:   sym,
		Rate:     rate,
		Interval: iv,
		NextAt:   msTime(resp.NextAt),
	}, nil
}

// ---------------------------------------------------------------------------
// Request plumbing
// ---------------------------------------------------------------------------

// get issues an unauthenticated GET for public market data.
func (c *Client) get(ctx context.Context, op, path string, out any) error {
	return c.do(ctx, op, http.MethodGet, path, nil, out, false)
}

// signedCall issues an authenticated request, signing with whichever
// credential the venue uses.
func (c *Client) signedCall(ctx context.Context, op, method, path string, body, out any) error {
	return c.do(ctx, op, method, path, body, out, true)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any, signed bool) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return domain.NewVenueError(c.cfg.VenueID, op, domain.VenueErrPermanent, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return domain.NewVenueError(c.cfg.VenueID, op, domain.VenueErrPermanent, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if signed {
		if err := c.authorize(req, method, path, payload); err != nil {
			return domain.NewVenueError(c.cfg.VenueID, op, domain.VenueErrAuth, err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.NewVenueError(c.cfg.VenueID, op, domain.VenueErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewVenueError(c.cfg.VenueID, op, domain.VenueErrTransient, err)
	}

	if err := c.checkStatus(op, resp, raw); err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return domain.NewVenueError(c.cfg.VenueID, op, domain.VenueErrPermanent,
				fmt.Errorf("decoding response: %w", err))
		}
	}
	return nil
}

// authorize attaches auth headers: secp256k1 signature for dex venues,
// HMAC headers otherwise.
func (c *Client) authorize(req *http.Request, method, path string, payload []byte) error {
	ts := time.Now().Unix()

	if c.cfg.Signer != nil {
		sig, err := c.cfg.Signer.SignRequest(ts, method, path, payload)
		if err != nil {
			return err
		}
		req.Header.Set("X-MTK-ADDRESS", c.cfg.Signer.Address())
		req.Header.Set("X-MTK-TIMESTAMP", strconv.FormatInt(ts, 10))
		req.Header.Set("X-MTK-SIGNATURE", sig)
		return nil
	}

	if c.cfg.HMAC != nil {
		for k, v := range c.cfg.HMAC.HeadersAt(method, path, string(payload), ts) {
			req.Header.Set(k, v)
		}
		return nil
	}

	return errors.New("no credentials configured")
}

// checkStatus maps non-2xx HTTP status codes to venue error kinds.
func (c *Client) checkStatus(op string, resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)
	cause := fmt.Errorf("HTTP %d: %s (%s)", resp.StatusCode, apiErr.Message, apiErr.Code)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.NewVenueError(c.cfg.VenueID, op, domain.VenueErrAuth, cause)
	case http.StatusNotFound:
		return domain.NewVenueError(c.cfg.VenueID, op, domain.VenueErrNotFound, cause)
	case http.StatusTooManyRequests:
		ve := domain.NewVenueError(c.cfg.VenueID, op, domain.VenueErrRateLimited, cause)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				ve.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return ve
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return domain.NewVenueError(c.cfg.VenueID, op, domain.VenueErrPermanent, cause)
	default:
		if resp.StatusCode >= 500 {
			return domain.NewVenueError(c.cfg.VenueID, op, domain.VenueErrTransient, cause)
		}
		return domain.NewVenueError(c.cfg.VenueID, op, domain.VenueErrPermanent, cause)
	}
}

func (c *Client) orderState(resp orderResponse, op string) (domain.OrderState, error) {
	st := domain.OrderState{
		ExternalID:    resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Status:        tradeStatus(resp.Status),
		UpdatedAt:     msTime(resp.UpdatedAt),
	}
	var err error
	if resp.FilledAmount != "" {
		if st.FilledAmount, err = parseDec(resp.FilledAmount); err != nil {
			return domain.OrderState{}, c.badPayload(op, "filledAmount", err)
		}
	}
	if resp.AvgFillPrice != "" {
		if st.AvgFillPrice, err = parseDec(resp.AvgFillPrice); err != nil {
			return domain.OrderState{}, c.badPayload(op, "avgFillPrice", err)
		}
	}
	if resp.Fee != "" {
		if st.Fee, err = parseDec(resp.Fee); err != nil {
			return domain.OrderState{}, c.badPayload(op, "fee", err)
		}
	}
	return st, nil
}

func (c *Client) badPayload(op, field string, err error) *domain.VenueError {
	return domain.NewVenueError(c.cfg.VenueID, op, domain.VenueErrPermanent,
		fmt.Errorf("parsing %s: %w", field, err))
}

// ---------------------------------------------------------------------------
// Parse helpers
// ---------------------------------------------------------------------------

// venueSymbol renders a pair the way the wire expects it: BTC/USDT ->
// BTC-USDT.
func venueSymbol(sym domain.Symbol) string {
	return sym.Base + "-" + sym.Quote
}

func parseDec(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseLevels(raw [][2]string) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("level price %q: %w", pair[0], err)
		}
		size, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("level size %q: %w", pair[1], err)
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out, nil
}

func msTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}

func tradeStatus(s string) domain.TradeStatus {
	switch strings.ToLower(s) {
	case "pending":
		return domain.TradeStatusPending
	case "open", "new", "accepted":
		return domain.TradeStatusOpen
	case "partial", "partially_filled":
		return domain.TradeStatusPartial
	case "filled":
		return domain.TradeStatusFilled
	case "cancelled", "canceled":
		return domain.TradeStatusCancelled
	case "rejected":
		return domain.TradeStatusRejected
	default:
		return domain.TradeStatusOpen
	}
}
