package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/holiman/uint256"

	"github.com/quorumlabs/launchpad/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// trading engine. It is declared locally so the handler package does not
// depend on the concrete engine implementation.
type MarketService interface {
	GetMarket(ctx context.Context, marketID int64) (*domain.Market, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]*domain.Market, error)
	CurrentPrice(ctx context.Context, marketID int64) (*uint256.Int, error)
	QuoteBuy(ctx context.Context, marketID int64, valueIn *uint256.Int) (*uint256.Int, error)
	QuoteSell(ctx context.Context, marketID int64, tokensIn *uint256.Int) (*uint256.Int, error)
	Buy(ctx context.Context, marketID int64, buyer domain.Agent, valueIn, minTokensOut *uint256.Int) (domain.Trade, error)
	Sell(ctx context.Context, marketID int64, seller domain.Agent, tokensIn, minValueOut *uint256.Int) (domain.Trade, error)
	ListTrades(ctx context.Context, marketID int64, opts domain.ListOpts) ([]domain.Trade, error)
}

// MarketHandler serves market and trading HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given engine and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []*domain.Market `json:"markets"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ListMarkets returns markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListMarkets(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		h.writeMarketError(w, r, id, "get market", err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// GetPrice returns the current spot price of a market's token.
// GET /api/markets/{id}/price
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	price, err := h.markets.CurrentPrice(r.Context(), id)
	if err != nil {
		h.writeMarketError(w, r, id, "get price", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"price":     price.Dec(),
	})
}

// Quote returns the expected fill for a prospective buy or sell without
// executing it.
// GET /api/markets/{id}/quote?side=buy&amount=1000000000000000000
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := parseAmount("amount", r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	side := r.URL.Query().Get("side")
	var out *uint256.Int
	switch side {
	case "buy":
		out, err = h.markets.QuoteBuy(r.Context(), id, amount)
	case "sell":
		out, err = h.markets.QuoteSell(r.Context(), id, amount)
	default:
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	if err != nil {
		h.writeMarketError(w, r, id, "quote", err)
		return
	}

	resp := map[string]any{
		"market_id": id,
		"side":      side,
	}
	if side == "buy" {
		resp["value_in"] = amount.Dec()
		resp["tokens_out"] = out.Dec()
	} else {
		resp["tokens_in"] = amount.Dec()
		resp["value_out"] = out.Dec()
	}
	writeJSON(w, http.StatusOK, resp)
}

// tradeRequest is the body for buy and sell orders. Amounts are decimal
// strings; the minimum fields are optional slippage bounds.
type tradeRequest struct {
	Agent        string `json:"agent"`
	Value        string `json:"value,omitempty"`   // buy: value in
	Tokens       string `json:"tokens,omitempty"`  // sell: tokens in
	MinTokensOut string `json:"min_tokens_out,omitempty"` // buy
	MinValueOut  string `json:"min_value_out,omitempty"`  // sell
}

// Buy executes a purchase against the market's curve.
// POST /api/markets/{id}/buy
func (h *MarketHandler) Buy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	buyer, err := parseAgent("agent", req.Agent)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	valueIn, err := parseAmount("value", req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minOut := uint256.NewInt(0)
	if req.MinTokensOut != "" {
		if minOut, err = parseAmount("min_tokens_out", req.MinTokensOut); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	trade, err := h.markets.Buy(r.Context(), id, buyer, valueIn, minOut)
	if err != nil {
		h.writeMarketError(w, r, id, "buy", err)
		return
	}

	writeJSON(w, http.StatusCreated, trade)
}

// Sell executes a sale back to the market's curve.
// POST /api/markets/{id}/sell
func (h *MarketHandler) Sell(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	seller, err := parseAgent("agent", req.Agent)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tokensIn, err := parseAmount("tokens", req.Tokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minOut := uint256.NewInt(0)
	if req.MinValueOut != "" {
		if minOut, err = parseAmount("min_value_out", req.MinValueOut); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	trade, err := h.markets.Sell(r.Context(), id, seller, tokensIn, minOut)
	if err != nil {
		h.writeMarketError(w, r, id, "sell", err)
		return
	}

	writeJSON(w, http.StatusCreated, trade)
}

// ListTrades returns a market's trade history, newest first.
// GET /api/markets/{id}/trades
func (h *MarketHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := parseListOpts(r)
	trades, err := h.markets.ListTrades(r.Context(), id, opts)
	if err != nil {
		h.writeMarketError(w, r, id, "list trades", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"trades":    trades,
		"limit":     opts.Limit,
		"offset":    opts.Offset,
	})
}

// writeMarketError maps trading-domain errors to HTTP status codes, logging
// anything unexpected.
func (h *MarketHandler) writeMarketError(w http.ResponseWriter, r *http.Request, id int64, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "market not found")
	case errors.Is(err, domain.ErrReservedAccount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrMarketGraduated),
		errors.Is(err, domain.ErrBelowMinimumPurchase),
		errors.Is(err, domain.ErrSlippageExceeded),
		errors.Is(err, domain.ErrInsufficientTokensHeld),
		errors.Is(err, domain.ErrCurveSupplyExhausted),
		errors.Is(err, domain.ErrInsufficientReserve):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "market busy, retry")
	default:
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.Int64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
