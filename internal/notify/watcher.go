package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quorumlabs/launchpad/internal/domain"
)

// Watcher subscribes to launchpad event channels on the signal bus and
// forwards noteworthy events (market creation, graduation, proposal
// resolution) to the Notifier.
type Watcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewWatcher creates a Watcher bridging the given bus to the notifier.
func NewWatcher(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Watcher {
	return &Watcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_watcher")),
	}
}

// Run consumes the markets and proposals channels until the context is
// cancelled. Malformed or uninteresting events are skipped.
func (w *Watcher) Run(ctx context.Context) error {
	markets, err := w.bus.Subscribe(ctx, "markets")
	if err != nil {
		return fmt.Errorf("notify: subscribe markets: %w", err)
	}
	proposals, err := w.bus.Subscribe(ctx, "proposals")
	if err != nil {
		return fmt.Errorf("notify: subscribe proposals: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-markets:
			if !ok {
				return fmt.Errorf("notify: markets channel closed")
			}
			w.handleMarketEvent(ctx, data)
		case data, ok := <-proposals:
			if !ok {
				return fmt.Errorf("notify: proposals channel closed")
			}
			w.handleProposalEvent(ctx, data)
		}
	}
}

func (w *Watcher) handleMarketEvent(ctx context.Context, data []byte) {
	var ev struct {
		Event    string `json:"event"`
		MarketID int64  `json:"market_id"`
		Symbol   string `json:"symbol"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}

	switch ev.Event {
	case "market_created":
		w.notify(ctx, ev.Event, "Market created",
			fmt.Sprintf("Market #%d (%s) is live on the curve.", ev.MarketID, ev.Symbol))
	case "market_graduated":
		w.notify(ctx, ev.Event, "Market graduated",
			fmt.Sprintf("Market #%d (%s) hit its target raise; liquidity handed off.", ev.MarketID, ev.Symbol))
	}
}

func (w *Watcher) handleProposalEvent(ctx context.Context, data []byte) {
	var ev struct {
		Event      string `json:"event"`
		ProposalID int64  `json:"proposal_id"`
		Type       string `json:"type"`
		State      string `json:"state"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}

	switch ev.Event {
	case "proposal_executed":
		w.notify(ctx, ev.Event, "Proposal executed",
			fmt.Sprintf("Proposal #%d has been executed.", ev.ProposalID))
	case "vote_cast":
		// Only the vote that settles the proposal is noteworthy.
		if ev.State == string(domain.ProposalApproved) ||
			ev.State == string(domain.ProposalRejected) ||
			ev.State == string(domain.ProposalExecuted) {
			w.notify(ctx, "proposal_resolved", "Proposal "+ev.State,
				fmt.Sprintf("Proposal #%d is now %s.", ev.ProposalID, ev.State))
		}
	}
}

func (w *Watcher) notify(ctx context.Context, event, title, message string) {
	if err := w.notifier.Notify(ctx, event, title, message); err != nil {
		w.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
