// Package ftx implements the cex.Venue contract against the FTX REST API.
package ftx

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/cex"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
)

const defaultBaseURL = "https://ftx.com"

func init() {
	cex.Register("ftx", func(creds cex.Credentials) (cex.Venue, error) {
		return New(creds), nil
	})
}

// Client is a minimal signed REST client covering the endpoints the engine
// needs. It carries no per-request state beyond credentials.
type Client struct {
	baseURL    string
	key        string
	secret     string
	subaccount string
	http       *http.Client
	now        func() time.Time
}

func New(creds cex.Credentials) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		key:        creds.APIKey,
		secret:     creds.APISecret,
		subaccount: creds.Subaccount,
		http:       &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
}

func (c *Client) Name() string { return "ftx" }

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(ts + method + path))
	mac.Write(payload)
	req.Header.Set("FTX-KEY", c.key)
	req.Header.Set("FTX-TS", ts)
	req.Header.Set("FTX-SIGN", hex.EncodeToString(mac.Sum(nil)))
	if c.subaccount != "" {
		req.Header.Set("FTX-SUBACCOUNT", c.subaccount)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s %s: status %d: decode: %w", method, path, resp.StatusCode, err)
	}
	if !env.Success {
		return fmt.Errorf("%s %s: %s", method, path, env.Error)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("%s %s: decode result: %w", method, path, err)
		}
	}
	return nil
}

type marketResult struct {
	Name string          `json:"name"`
	Last decimal.Decimal `json:"last"`
}

func (c *Client) Market(ctx context.Context, id string) (cex.Market, error) {
	var m marketResult
	if err := c.do(ctx, http.MethodGet, "/api/markets/"+id, nil, &m); err != nil {
		return cex.Market{}, err
	}
	return cex.Market{ID: m.Name, LastPrice: m.Last}, nil
}

type accountResult struct {
	FreeCollateral               decimal.Decimal `json:"freeCollateral"`
	TotalAccountValue            decimal.Decimal `json:"totalAccountValue"`
	MarginFraction               decimal.Decimal `json:"marginFraction"`
	MaintenanceMarginRequirement decimal.Decimal `json:"maintenanceMarginRequirement"`
}

func (c *Client) AccountInfo(ctx context.Context) (cex.AccountInfo, error) {
	var a accountResult
	if err := c.do(ctx, http.MethodGet, "/api/account", nil, &a); err != nil {
		return cex.AccountInfo{}, err
	}
	return cex.AccountInfo{
		FreeCollateral:               a.FreeCollateral,
		TotalAccountValue:            a.TotalAccountValue,
		MarginFraction:               a.MarginFraction,
		MaintenanceMarginRequirement: a.MaintenanceMarginRequirement,
	}, nil
}

type positionResult struct {
	Future      string          `json:"future"`
	NetSize     decimal.Decimal `json:"netSize"`
	EntryPrice  decimal.Decimal `json:"entryPrice"`
	RealizedPnl decimal.Decimal `json:"realizedPnl"`
	Cost        decimal.Decimal `json:"cost"`
}

func (c *Client) positions(ctx context.Context) ([]positionResult, error) {
	var ps []positionResult
	if err := c.do(ctx, http.MethodGet, "/api/positions", nil, &ps); err != nil {
		return nil, err
	}
	return ps, nil
}

func (c *Client) Position(ctx context.Context, marketID string) (*cex.Position, error) {
	ps, err := c.positions(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range ps {
		if p.Future == marketID && !p.NetSize.IsZero() {
			return &cex.Position{
				Market:      p.Future,
				NetSize:     p.NetSize,
				EntryPrice:  p.EntryPrice,
				RealizedPnl: p.RealizedPnl,
				CostBasis:   p.Cost,
			}, nil
		}
	}
	return nil, nil
}

func (c *Client) TotalPnLs(ctx context.Context) (map[string]decimal.Decimal, error) {
	ps, err := c.positions(ctx)
	if err != nil {
		return nil, err
	}
	pnls := make(map[string]decimal.Decimal, len(ps))
	for _, p := range ps {
		pnls[p.Future] = p.RealizedPnl
	}
	return pnls, nil
}

type orderRequest struct {
	Market string           `json:"market"`
	Side   string           `json:"side"`
	Size   decimal.Decimal  `json:"size"`
	Type   string           `json:"type"`
	Price  *decimal.Decimal `json:"price"`
}

func (c *Client) PlaceOrder(ctx context.Context, order cex.Order) error {
	side := "buy"
	if order.Side == perp.Sell {
		side = "sell"
	}
	req := orderRequest{
		Market: order.Market,
		Side:   side,
		Size:   order.Size,
		Type:   string(order.Type),
		Price:  order.Price,
	}
	return c.do(ctx, http.MethodPost, "/api/orders", req, nil)
}
