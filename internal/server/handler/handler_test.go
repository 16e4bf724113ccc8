package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/launchpad/internal/domain"
	"github.com/quorumlabs/launchpad/internal/govern"
	"github.com/quorumlabs/launchpad/internal/market"
	"github.com/quorumlabs/launchpad/internal/platform/amm"
	"github.com/quorumlabs/launchpad/internal/store/memory"
	"github.com/quorumlabs/launchpad/internal/token"
)

var (
	agentA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	agentB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	agentC = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

type fixture struct {
	markets *market.Engine
	gov     *govern.Engine
	mh      *MarketHandler
	gh      *GovernanceHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eng := market.NewEngine(
		market.DefaultConfig(),
		memory.NewMarketStore(),
		memory.NewTradeStore(),
		token.NewLedger(),
		amm.NewNoopProvisioner(logger),
		nil, nil, nil,
		logger,
	)
	gov := govern.NewEngine(
		govern.DefaultConfig(),
		memory.NewProposalStore(),
		memory.NewQuorumStore(),
		eng,
		memory.NewAuditStore(),
		nil,
		logger,
	)

	return &fixture{
		markets: eng,
		gov:     gov,
		mh:      NewMarketHandler(eng, logger),
		gh:      NewGovernanceHandler(gov, logger),
	}
}

// createMarket provisions a market directly through the trading engine.
func (f *fixture) createMarket(t *testing.T) *domain.Market {
	t.Helper()
	quorum := &domain.Quorum{
		ID:      1,
		Version: 1,
		Members: []domain.Member{
			{Agent: agentA, Weight: 40},
			{Agent: agentB, Weight: 35},
			{Agent: agentC, Weight: 25},
		},
	}
	supply := new(uint256.Int).Mul(uint256.NewInt(1_000_000), uint256.NewInt(1e18))
	m, err := f.markets.CreateMarket(context.Background(), quorum, domain.CurveParameters{
		BasePrice:   uint256.NewInt(1e14),
		Slope:       uint256.NewInt(1e10),
		TargetRaise: new(uint256.Int).Mul(uint256.NewInt(10), uint256.NewInt(1e18)),
	}, supply, "Agent Exploration", "AGX", "autonomous exploration")
	require.NoError(t, err)
	return m
}

// doJSON invokes a handler directly with an optional path id and JSON body.
func doJSON(h http.HandlerFunc, method, target, id string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if id != "" {
		req.SetPathValue("id", id)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := NewHealthHandler(map[string]Pinger{
		"db": func(ctx context.Context) error { return nil },
	}, logger)
	rec := doJSON(h.HealthCheck, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	h = NewHealthHandler(map[string]Pinger{
		"db":    func(ctx context.Context) error { return nil },
		"redis": func(ctx context.Context) error { return errors.New("down") },
	}, logger)
	rec = doJSON(h.HealthCheck, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
}

func TestGetMarket(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t)

	rec := doJSON(f.mh.GetMarket, http.MethodGet, "/api/markets/1", fmt.Sprint(m.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "AGX", body["symbol"])

	rec = doJSON(f.mh.GetMarket, http.MethodGet, "/api/markets/99", "99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(f.mh.GetMarket, http.MethodGet, "/api/markets/abc", "abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPriceAndQuote(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t)
	id := fmt.Sprint(m.ID)

	rec := doJSON(f.mh.GetPrice, http.MethodGet, "/api/markets/1/price", id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100000000000000", decode(t, rec)["price"]) // base price, nothing sold

	rec = doJSON(f.mh.Quote, http.MethodGet, "/api/markets/1/quote?side=buy&amount=1000000000000000000", id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "buy", body["side"])
	assert.NotEmpty(t, body["tokens_out"])

	rec = doJSON(f.mh.Quote, http.MethodGet, "/api/markets/1/quote?side=hold&amount=1", id, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuyAndTrades(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t)
	id := fmt.Sprint(m.ID)

	rec := doJSON(f.mh.Buy, http.MethodPost, "/api/markets/1/buy", id, tradeRequest{
		Agent: agentA.Hex(),
		Value: "1000000000000000000", // 1.0
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "buy", body["side"])

	rec = doJSON(f.mh.ListTrades, http.MethodGet, "/api/markets/1/trades", id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	trades := decode(t, rec)["trades"].([]any)
	assert.Len(t, trades, 1)
}

func TestBuyValidation(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t)
	id := fmt.Sprint(m.ID)

	// Bad agent address.
	rec := doJSON(f.mh.Buy, http.MethodPost, "/api/markets/1/buy", id, tradeRequest{
		Agent: "not-an-address",
		Value: "1000000000000000000",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Reserved ledger accounts cannot trade.
	rec = doJSON(f.mh.Buy, http.MethodPost, "/api/markets/1/buy", id, tradeRequest{
		Agent: domain.TreasuryAccount.Hex(),
		Value: "1000000000000000000",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Below minimum purchase.
	rec = doJSON(f.mh.Buy, http.MethodPost, "/api/markets/1/buy", id, tradeRequest{
		Agent: agentA.Hex(),
		Value: "1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Selling more than held.
	rec = doJSON(f.mh.Sell, http.MethodPost, "/api/markets/1/sell", id, tradeRequest{
		Agent:  agentB.Hex(),
		Tokens: "100000000000000000000000000",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGovernanceFormationLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(f.gh.CreateProposal, http.MethodPost, "/api/proposals", "", createProposalRequest{
		Type:     string(domain.ProposalQuorumFormation),
		Proposer: agentA.Hex(),
		Payload: payloadRequest{
			Agents:  []string{agentA.Hex(), agentB.Hex(), agentC.Hex()},
			Weights: []int{40, 35, 25},
			Name:    "Agent Exploration",
			Symbol:  "AGX",
			Thesis:  "autonomous exploration",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	pid := fmt.Sprint(int64(body["id"].(float64)))
	assert.Equal(t, string(domain.ProposalPending), body["state"])

	// Formation is unanimous; the final yes auto-executes market creation.
	for _, agent := range []common.Address{agentA, agentB, agentC} {
		rec = doJSON(f.gh.Vote, http.MethodPost, "/api/proposals/1/votes", pid, voteRequest{
			Agent:   agent.Hex(),
			Support: true,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	body = decode(t, rec)
	assert.Equal(t, string(domain.ProposalExecuted), body["state"])
	marketID := int64(body["created_market_id"].(float64))
	require.Positive(t, marketID)

	// The created market is live and governed by the formed quorum.
	rec = doJSON(f.mh.GetMarket, http.MethodGet, "/api/markets/1", fmt.Sprint(marketID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AGX", decode(t, rec)["symbol"])

	rec = doJSON(f.gh.GetQuorum, http.MethodGet, "/api/markets/1/quorum", fmt.Sprint(marketID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	members := decode(t, rec)["members"].([]any)
	assert.Len(t, members, 3)
}

func TestGovernanceVoteErrors(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(f.gh.CreateProposal, http.MethodPost, "/api/proposals", "", createProposalRequest{
		Type:     string(domain.ProposalQuorumFormation),
		Proposer: agentA.Hex(),
		Payload: payloadRequest{
			Agents:  []string{agentA.Hex(), agentB.Hex(), agentC.Hex()},
			Weights: []int{40, 35, 25},
			Name:    "Agent Exploration",
			Symbol:  "AGX",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	pid := fmt.Sprint(int64(decode(t, rec)["id"].(float64)))

	// Outsider cannot vote.
	rec = doJSON(f.gh.Vote, http.MethodPost, "/api/proposals/1/votes", pid, voteRequest{
		Agent:   "0x00000000000000000000000000000000000000d4",
		Support: true,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Double vote conflicts.
	rec = doJSON(f.gh.Vote, http.MethodPost, "/api/proposals/1/votes", pid, voteRequest{Agent: agentA.Hex(), Support: true})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(f.gh.Vote, http.MethodPost, "/api/proposals/1/votes", pid, voteRequest{Agent: agentA.Hex(), Support: true})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Executing a pending proposal fails.
	rec = doJSON(f.gh.Execute, http.MethodPost, "/api/proposals/1/execute", pid, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateProposalValidation(t *testing.T) {
	f := newFixture(t)

	// Unknown type.
	rec := doJSON(f.gh.CreateProposal, http.MethodPost, "/api/proposals", "", createProposalRequest{
		Type:     "dissolve",
		Proposer: agentA.Hex(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Weights not summing to 100.
	rec = doJSON(f.gh.CreateProposal, http.MethodPost, "/api/proposals", "", createProposalRequest{
		Type:     string(domain.ProposalQuorumFormation),
		Proposer: agentA.Hex(),
		Payload: payloadRequest{
			Agents:  []string{agentA.Hex(), agentB.Hex(), agentC.Hex()},
			Weights: []int{40, 35, 20},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Non-formation proposals need a target market.
	rec = doJSON(f.gh.CreateProposal, http.MethodPost, "/api/proposals", "", createProposalRequest{
		Type:     string(domain.ProposalAdjustFees),
		Proposer: agentA.Hex(),
		Payload:  payloadRequest{FeeBps: 50},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
