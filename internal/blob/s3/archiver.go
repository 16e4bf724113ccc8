package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quorumlabs/launchpad/internal/domain"
)

// Archiver moves aged records out of the primary store: trades older than the
// retention window are serialized to JSONL, uploaded, and then deleted from
// Postgres. Settled proposals are exported but kept, since the governance
// history stays queryable.
type Archiver struct {
	writer    domain.BlobWriter
	trades    domain.TradeStore
	proposals domain.ProposalStore
	audit     domain.AuditStore
	batchSize int
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. batchSize bounds how many trades are
// exported per upload.
func NewArchiver(
	writer domain.BlobWriter,
	trades domain.TradeStore,
	proposals domain.ProposalStore,
	audit domain.AuditStore,
	batchSize int,
	logger *slog.Logger,
) *Archiver {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Archiver{
		writer:    writer,
		trades:    trades,
		proposals: proposals,
		audit:     audit,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTrades exports trades older than the cutoff in batches and deletes
// them from the primary store once every batch has been uploaded. Deletion
// only happens after the last upload succeeds, so a failed run leaves the
// store intact and the next run re-exports.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	batch := 0
	for {
		trades, err := a.trades.ListBefore(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades query: %w", err)
		}
		if len(trades) == 0 {
			break
		}

		buf, err := marshalJSONL(trades)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades marshal: %w", err)
		}

		path := archivePath("trades", before, batch)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: archive trades upload: %w", err)
		}

		// The batch is durable in blob storage; drop it from Postgres. Each
		// loop iteration deletes up to the newest trade it uploaded.
		cutoff := trades[len(trades)-1].CreatedAt.Add(time.Nanosecond)
		if cutoff.After(before) {
			cutoff = before
		}
		deleted, err := a.trades.DeleteBefore(ctx, cutoff)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades delete: %w", err)
		}
		total += deleted
		batch++

		if len(trades) < a.batchSize {
			break
		}
	}

	if total > 0 {
		if err := a.audit.Log(ctx, "archive.trades", map[string]any{
			"count":  total,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return total, fmt.Errorf("s3blob: archive trades audit log: %w", err)
		}
	}
	return total, nil
}

// ArchiveProposals exports proposals created before the cutoff that are no
// longer pending. The primary rows are kept.
func (a *Archiver) ArchiveProposals(ctx context.Context, before time.Time) (int64, error) {
	all, err := a.proposals.List(ctx, domain.ListOpts{Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive proposals query: %w", err)
	}

	settled := make([]*domain.Proposal, 0, len(all))
	for _, p := range all {
		if p.State != domain.ProposalPending {
			settled = append(settled, p)
		}
	}
	if len(settled) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(settled)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive proposals marshal: %w", err)
	}

	path := archivePath("proposals", before, 0)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive proposals upload: %w", err)
	}

	count := int64(len(settled))
	if err := a.audit.Log(ctx, "archive.proposals", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive proposals audit log: %w", err)
	}
	return count, nil
}

// Run archives on a fixed interval until the context is cancelled. Errors are
// logged, not fatal: the next tick retries.
func (a *Archiver) Run(ctx context.Context, interval time.Duration, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			before := time.Now().UTC().Add(-retention)
			if n, err := a.ArchiveTrades(ctx, before); err != nil {
				a.logger.ErrorContext(ctx, "trade archival failed", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.InfoContext(ctx, "trades archived", slog.Int64("count", n))
			}
			if n, err := a.ArchiveProposals(ctx, before); err != nil {
				a.logger.ErrorContext(ctx, "proposal archival failed", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.InfoContext(ctx, "proposals archived", slog.Int64("count", n))
			}
		}
	}
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2026-08-000.jsonl
//	archive/proposals/2026-08-000.jsonl
func archivePath(kind string, before time.Time, batch int) string {
	return fmt.Sprintf("archive/%s/%s-%03d.jsonl", kind, before.Format("2006-01"), batch)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
