// Package binance implements the cex.Venue contract against the Binance
// USDT-margined futures API. It additionally provides liquidation-price
// reads and spot-to-futures collateral transfers.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/cex"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
)

const (
	defaultFuturesBaseURL = "https://fapi.binance.com"
	defaultSpotBaseURL    = "https://api.binance.com"

	recvWindowMillis = 5000

	// Spot wallet to USDT-margined futures wallet.
	transferSpotToFutures = 1
)

func init() {
	cex.Register("binance", func(creds cex.Credentials) (cex.Venue, error) {
		return New(creds), nil
	})
}

type Client struct {
	futuresBaseURL string
	spotBaseURL    string
	key            string
	secret         string
	http           *http.Client
	now            func() time.Time
}

func New(creds cex.Credentials) *Client {
	return &Client{
		futuresBaseURL: defaultFuturesBaseURL,
		spotBaseURL:    defaultSpotBaseURL,
		key:            creds.APIKey,
		secret:         creds.APISecret,
		http:           &http.Client{Timeout: 15 * time.Second},
		now:            time.Now,
	}
}

func (c *Client) Name() string { return "binance" }

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (c *Client) sign(params url.Values) string {
	params.Set("recvWindow", strconv.Itoa(recvWindowMillis))
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(params.Encode()))
	params.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	return params.Encode()
}

func (c *Client) do(ctx context.Context, method, base, path string, params url.Values, signed bool, out interface{}) error {
	query := params.Encode()
	if signed {
		query = c.sign(params)
	}
	u := base + path
	if query != "" {
		u += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Msg != "" {
			return fmt.Errorf("%s %s: code %d: %s", method, path, apiErr.Code, apiErr.Msg)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s %s: decode: %w", method, path, err)
		}
	}
	return nil
}

func (c *Client) Market(ctx context.Context, id string) (cex.Market, error) {
	var ticker struct {
		Symbol string          `json:"symbol"`
		Price  decimal.Decimal `json:"price"`
	}
	params := url.Values{"symbol": {id}}
	if err := c.do(ctx, http.MethodGet, c.futuresBaseURL, "/fapi/v1/ticker/price", params, false, &ticker); err != nil {
		return cex.Market{}, err
	}
	return cex.Market{ID: ticker.Symbol, LastPrice: ticker.Price}, nil
}

type accountResponse struct {
	TotalMarginBalance decimal.Decimal `json:"totalMarginBalance"`
	TotalMaintMargin   decimal.Decimal `json:"totalMaintMargin"`
	AvailableBalance   decimal.Decimal `json:"availableBalance"`
	Positions          []struct {
		Symbol   string          `json:"symbol"`
		Notional decimal.Decimal `json:"notional"`
	} `json:"positions"`
}

func (c *Client) AccountInfo(ctx context.Context) (cex.AccountInfo, error) {
	var acct accountResponse
	if err := c.do(ctx, http.MethodGet, c.futuresBaseURL, "/fapi/v2/account", url.Values{}, true, &acct); err != nil {
		return cex.AccountInfo{}, err
	}
	notional := decimal.Zero
	for _, p := range acct.Positions {
		notional = notional.Add(p.Notional.Abs())
	}
	// Collateral over open notional, so a larger fraction is safer. Zero
	// open notional reports a zero fraction and the caller treats the
	// account as unlevered.
	fraction := decimal.Zero
	if notional.IsPositive() {
		fraction = acct.TotalMarginBalance.Div(notional)
	}
	return cex.AccountInfo{
		FreeCollateral:               acct.AvailableBalance,
		TotalAccountValue:            acct.TotalMarginBalance,
		MarginFraction:               fraction,
		MaintenanceMarginRequirement: acct.TotalMaintMargin,
	}, nil
}

type positionRiskResponse struct {
	Symbol           string          `json:"symbol"`
	PositionAmt      decimal.Decimal `json:"positionAmt"`
	EntryPrice       decimal.Decimal `json:"entryPrice"`
	MarkPrice        decimal.Decimal `json:"markPrice"`
	LiquidationPrice decimal.Decimal `json:"liquidationPrice"`
}

func (c *Client) positionRisk(ctx context.Context, marketID string) (positionRiskResponse, error) {
	var rs []positionRiskResponse
	params := url.Values{"symbol": {marketID}}
	if err := c.do(ctx, http.MethodGet, c.futuresBaseURL, "/fapi/v2/positionRisk", params, true, &rs); err != nil {
		return positionRiskResponse{}, err
	}
	for _, r := range rs {
		if r.Symbol == marketID {
			return r, nil
		}
	}
	return positionRiskResponse{}, fmt.Errorf("no position risk for %s", marketID)
}

func (c *Client) Position(ctx context.Context, marketID string) (*cex.Position, error) {
	r, err := c.positionRisk(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if r.PositionAmt.IsZero() {
		return nil, nil
	}
	return &cex.Position{
		Market:     r.Symbol,
		NetSize:    r.PositionAmt,
		EntryPrice: r.EntryPrice,
		CostBasis:  r.PositionAmt.Mul(r.EntryPrice),
	}, nil
}

// PositionRisk reports mark and liquidation prices for the symbol.
func (c *Client) PositionRisk(ctx context.Context, marketID string) (cex.PositionRisk, error) {
	r, err := c.positionRisk(ctx, marketID)
	if err != nil {
		return cex.PositionRisk{}, err
	}
	return cex.PositionRisk{MarkPrice: r.MarkPrice, LiquidationPrice: r.LiquidationPrice}, nil
}

type incomeRecord struct {
	Symbol string          `json:"symbol"`
	Income decimal.Decimal `json:"income"`
}

func (c *Client) TotalPnLs(ctx context.Context) (map[string]decimal.Decimal, error) {
	var records []incomeRecord
	params := url.Values{"incomeType": {"REALIZED_PNL"}, "limit": {"1000"}}
	if err := c.do(ctx, http.MethodGet, c.futuresBaseURL, "/fapi/v1/income", params, true, &records); err != nil {
		return nil, err
	}
	pnls := make(map[string]decimal.Decimal)
	for _, rec := range records {
		pnls[rec.Symbol] = pnls[rec.Symbol].Add(rec.Income)
	}
	return pnls, nil
}

func (c *Client) PlaceOrder(ctx context.Context, order cex.Order) error {
	side := "BUY"
	if order.Side == perp.Sell {
		side = "SELL"
	}
	params := url.Values{
		"symbol":   {order.Market},
		"side":     {side},
		"quantity": {order.Size.String()},
	}
	switch order.Type {
	case cex.OrderLimit:
		if order.Price == nil {
			return fmt.Errorf("limit order on %s has no price", order.Market)
		}
		params.Set("type", "LIMIT")
		params.Set("timeInForce", "GTC")
		params.Set("price", order.Price.String())
	default:
		params.Set("type", "MARKET")
	}
	return c.do(ctx, http.MethodPost, c.futuresBaseURL, "/fapi/v1/order", params, true, nil)
}

// TransferFromSpot moves USDT collateral from the spot wallet into the
// futures wallet.
func (c *Client) TransferFromSpot(ctx context.Context, amount decimal.Decimal) error {
	params := url.Values{
		"asset":  {"USDT"},
		"amount": {amount.String()},
		"type":   {strconv.Itoa(transferSpotToFutures)},
	}
	return c.do(ctx, http.MethodPost, c.spotBaseURL, "/sapi/v1/futures/transfer", params, true, nil)
}
