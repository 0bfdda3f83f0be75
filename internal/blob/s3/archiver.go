package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marketfold/venue/internal/domain"
)

// ArchiveImpl implements domain.Archiver by snapshotting a resolved
// contract's final state and full trading history to object storage as
// JSONL.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer     domain.BlobWriter
	contracts  domain.ContractStore
	bets       domain.BetStore
	provisions domain.LiquidityStore
	audit      domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	contracts domain.ContractStore,
	bets domain.BetStore,
	provisions domain.LiquidityStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:     writer,
		contracts:  contracts,
		bets:       bets,
		provisions: provisions,
		audit:      audit,
	}
}

const archivePageSize = 500

// ArchiveContract uploads the contract record, every bet, and every
// liquidity provision of a resolved contract. It refuses to archive an
// unresolved contract. The archival event is recorded in the audit log and
// the total count of archived records is returned.
func (a *ArchiveImpl) ArchiveContract(ctx context.Context, contractID string) (int64, error) {
	c, err := a.contracts.GetByID(ctx, contractID)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive contract query: %w", err)
	}
	if !c.Resolved {
		return 0, fmt.Errorf("s3blob: archive contract %s: not resolved", contractID)
	}

	var bets []domain.Bet
	opts := domain.ListOpts{Limit: archivePageSize}
	for {
		batch, err := a.bets.ListByContract(ctx, contractID, opts)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive bets query: %w", err)
		}
		bets = append(bets, batch...)
		if len(batch) < opts.Limit {
			break
		}
		opts.Offset += opts.Limit
	}

	provisions, err := a.provisions.ListByContract(ctx, contractID)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive provisions query: %w", err)
	}

	prefix := archivePrefix(c)
	if err := upload(ctx, a.writer, prefix+"contract.jsonl", []domain.Contract{c}); err != nil {
		return 0, err
	}
	if len(bets) > 0 {
		if err := upload(ctx, a.writer, prefix+"bets.jsonl", bets); err != nil {
			return 0, err
		}
	}
	if len(provisions) > 0 {
		if err := upload(ctx, a.writer, prefix+"liquidity.jsonl", provisions); err != nil {
			return 0, err
		}
	}

	count := int64(1 + len(bets) + len(provisions))

	if err := a.audit.Log(ctx, "archive.contract", map[string]any{
		"contract": contractID,
		"prefix":   prefix,
		"count":    count,
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit log: %w", err)
	}

	return count, nil
}

// Sweep archives every contract resolved before the retention cutoff,
// returning the number of contracts archived. A failure on a single
// contract aborts the sweep so the caller can retry it.
func (a *ArchiveImpl) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-retention)

	archived := 0
	opts := domain.ListOpts{Limit: archivePageSize}
	for {
		batch, err := a.contracts.ListResolved(ctx, opts)
		if err != nil {
			return archived, fmt.Errorf("s3blob: sweep query: %w", err)
		}
		for _, c := range batch {
			if !resolvedBefore(c, cutoff) {
				continue
			}
			if _, err := a.ArchiveContract(ctx, c.ID); err != nil {
				return archived, err
			}
			archived++
		}
		if len(batch) < opts.Limit {
			break
		}
		opts.Offset += opts.Limit
	}
	return archived, nil
}

// archivePrefix builds the object key prefix for one contract's archive,
// partitioned by resolution year-month.
//
//	archive/contracts/2025-01/<contract-id>/
func archivePrefix(c domain.Contract) string {
	month := c.UpdatedAt
	if c.Resolution != nil && !c.Resolution.ResolvedAt.IsZero() {
		month = c.Resolution.ResolvedAt
	}
	return fmt.Sprintf("archive/contracts/%s/%s/", month.Format("2006-01"), c.ID)
}

// resolvedBefore reports whether the contract resolved before the cutoff.
func resolvedBefore(c domain.Contract, cutoff time.Time) bool {
	if !c.Resolved || c.Resolution == nil {
		return false
	}
	return c.Resolution.ResolvedAt.Before(cutoff)
}

// upload serialises records as JSONL and writes them at path.
func upload[T any](ctx context.Context, w domain.BlobWriter, path string, records []T) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: archive marshal %s: %w", path, err)
	}
	if err := w.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive upload %s: %w", path, err)
	}
	return nil
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
