package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quorumlabs/launchpad/internal/domain"
)

// GovernanceService defines the methods that the governance handler requires
// from the proposal engine.
type GovernanceService interface {
	ProposeQuorum(ctx context.Context, proposer domain.Agent, payload domain.ProposalPayload) (*domain.Proposal, error)
	Propose(ctx context.Context, typ domain.ProposalType, targetMarketID int64, proposer domain.Agent, payload domain.ProposalPayload) (*domain.Proposal, error)
	Vote(ctx context.Context, proposalID int64, agent domain.Agent, support bool) (*domain.Proposal, error)
	Execute(ctx context.Context, proposalID int64) (*domain.Proposal, error)
	GetProposal(ctx context.Context, proposalID int64) (*domain.Proposal, error)
	ListProposals(ctx context.Context, opts domain.ListOpts) ([]*domain.Proposal, error)
	GetQuorum(ctx context.Context, marketID int64) (*domain.Quorum, error)
}

// GovernanceHandler serves proposal lifecycle HTTP endpoints.
type GovernanceHandler struct {
	gov    GovernanceService
	logger *slog.Logger
}

// NewGovernanceHandler creates a GovernanceHandler with the given engine and
// logger.
func NewGovernanceHandler(gov GovernanceService, logger *slog.Logger) *GovernanceHandler {
	return &GovernanceHandler{
		gov:    gov,
		logger: logger,
	}
}

// payloadRequest mirrors domain.ProposalPayload with amounts as decimal
// strings and agents as hex addresses.
type payloadRequest struct {
	Agents  []string `json:"agents,omitempty"`
	Weights []int    `json:"weights,omitempty"`
	Name    string   `json:"name,omitempty"`
	Symbol  string   `json:"symbol,omitempty"`
	Thesis  string   `json:"thesis,omitempty"`

	Agent  string `json:"agent,omitempty"`
	Weight int    `json:"weight,omitempty"`

	Amount    string `json:"amount,omitempty"`
	Recipient string `json:"recipient,omitempty"`

	FeeBps uint32 `json:"fee_bps,omitempty"`

	BasePrice   string `json:"base_price,omitempty"`
	Slope       string `json:"slope,omitempty"`
	TargetRaise string `json:"target_raise,omitempty"`
	TotalSupply string `json:"total_supply,omitempty"`
}

// toDomain converts the wire payload into a domain.ProposalPayload,
// validating addresses and amounts as it goes.
func (p payloadRequest) toDomain() (domain.ProposalPayload, error) {
	out := domain.ProposalPayload{
		Weights: p.Weights,
		Name:    p.Name,
		Symbol:  p.Symbol,
		Thesis:  p.Thesis,
		Weight:  p.Weight,
		FeeBps:  p.FeeBps,
	}

	for _, a := range p.Agents {
		agent, err := parseAgent("agents", a)
		if err != nil {
			return domain.ProposalPayload{}, err
		}
		out.Agents = append(out.Agents, agent)
	}

	if p.Agent != "" {
		agent, err := parseAgent("agent", p.Agent)
		if err != nil {
			return domain.ProposalPayload{}, err
		}
		out.Agent = agent
	}
	if p.Recipient != "" {
		recipient, err := parseAgent("recipient", p.Recipient)
		if err != nil {
			return domain.ProposalPayload{}, err
		}
		out.Recipient = recipient
	}

	if p.Amount != "" {
		amount, err := parseAmount("amount", p.Amount)
		if err != nil {
			return domain.ProposalPayload{}, err
		}
		out.Amount = amount
	}
	if p.TotalSupply != "" {
		supply, err := parseAmount("total_supply", p.TotalSupply)
		if err != nil {
			return domain.ProposalPayload{}, err
		}
		out.TotalSupply = supply
	}

	// Curve overrides come as a set: all three or none.
	if p.BasePrice != "" || p.Slope != "" || p.TargetRaise != "" {
		base, err := parseAmount("base_price", p.BasePrice)
		if err != nil {
			return domain.ProposalPayload{}, err
		}
		slope, err := parseAmount("slope", p.Slope)
		if err != nil {
			return domain.ProposalPayload{}, err
		}
		target, err := parseAmount("target_raise", p.TargetRaise)
		if err != nil {
			return domain.ProposalPayload{}, err
		}
		out.Curve = &domain.CurveParameters{
			BasePrice:   base,
			Slope:       slope,
			TargetRaise: target,
		}
	}

	return out, nil
}

// createProposalRequest is the body for proposal creation.
type createProposalRequest struct {
	Type           string         `json:"type"`
	TargetMarketID int64          `json:"target_market_id,omitempty"`
	Proposer       string         `json:"proposer"`
	Payload        payloadRequest `json:"payload"`
}

// CreateProposal opens a new proposal of any type.
// POST /api/proposals
func (h *GovernanceHandler) CreateProposal(w http.ResponseWriter, r *http.Request) {
	var req createProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	typ := domain.ProposalType(req.Type)
	if !typ.Valid() {
		writeError(w, http.StatusBadRequest, "unknown proposal type")
		return
	}

	proposer, err := parseAgent("proposer", req.Proposer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload, err := req.Payload.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var proposal *domain.Proposal
	if typ == domain.ProposalQuorumFormation {
		proposal, err = h.gov.ProposeQuorum(r.Context(), proposer, payload)
	} else {
		if req.TargetMarketID <= 0 {
			writeError(w, http.StatusBadRequest, "target_market_id is required")
			return
		}
		proposal, err = h.gov.Propose(r.Context(), typ, req.TargetMarketID, proposer, payload)
	}
	if err != nil {
		h.writeGovError(w, r, 0, "create proposal", err)
		return
	}

	writeJSON(w, http.StatusCreated, proposal)
}

// GetProposal returns a proposal by its ID, with any due deadline resolution
// applied.
// GET /api/proposals/{id}
func (h *GovernanceHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	proposal, err := h.gov.GetProposal(r.Context(), id)
	if err != nil {
		h.writeGovError(w, r, id, "get proposal", err)
		return
	}

	writeJSON(w, http.StatusOK, proposal)
}

// ListProposals returns proposals with pagination, newest first.
// GET /api/proposals?limit=50&offset=0
func (h *GovernanceHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	proposals, err := h.gov.ListProposals(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list proposals failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list proposals")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"proposals": proposals,
		"limit":     opts.Limit,
		"offset":    opts.Offset,
	})
}

// voteRequest is the body for casting a vote.
type voteRequest struct {
	Agent   string `json:"agent"`
	Support bool   `json:"support"`
}

// Vote records an agent's vote on a pending proposal.
// POST /api/proposals/{id}/votes
func (h *GovernanceHandler) Vote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	agent, err := parseAgent("agent", req.Agent)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	proposal, err := h.gov.Vote(r.Context(), id, agent, req.Support)
	if err != nil {
		h.writeGovError(w, r, id, "vote", err)
		return
	}

	writeJSON(w, http.StatusOK, proposal)
}

// Execute applies an approved proposal's action.
// POST /api/proposals/{id}/execute
func (h *GovernanceHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	proposal, err := h.gov.Execute(r.Context(), id)
	if err != nil {
		h.writeGovError(w, r, id, "execute", err)
		return
	}

	writeJSON(w, http.StatusOK, proposal)
}

// GetQuorum returns the current quorum snapshot governing a market.
// GET /api/markets/{id}/quorum
func (h *GovernanceHandler) GetQuorum(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quorum, err := h.gov.GetQuorum(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "quorum not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get quorum failed",
			slog.Int64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get quorum")
		return
	}

	writeJSON(w, http.StatusOK, quorum)
}

// writeGovError maps governance-domain errors to HTTP status codes, logging
// anything unexpected.
func (h *GovernanceHandler) writeGovError(w http.ResponseWriter, r *http.Request, id int64, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "proposal not found")
	case errors.Is(err, domain.ErrInvalidWeights),
		errors.Is(err, domain.ErrDuplicateAgent),
		errors.Is(err, domain.ErrQuorumSizeOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotEligibleVoter):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrAlreadyVoted),
		errors.Is(err, domain.ErrAlreadyExecuted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrVotingWindowClosed),
		errors.Is(err, domain.ErrExecutionWindowExpired),
		errors.Is(err, domain.ErrProposalNotApproved),
		errors.Is(err, domain.ErrInsufficientTreasury):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.Int64("proposal_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
