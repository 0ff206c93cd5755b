package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// archiveSource is the slice of a store the archiver needs: enumerate old
// rows, then prune them once they are safely uploaded.
type archiveSource[T any] interface {
	ListBefore(ctx context.Context, before time.Time) ([]T, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver moves closed trading history out of PostgreSQL and into object
// storage as monthly JSONL files. Rows are deleted only after their
// archive object has been uploaded; a failed upload leaves the database
// untouched and the next run retries the same window.
type Archiver struct {
	writer        domain.BlobWriter
	opportunities archiveSource[domain.Opportunity]
	executions    archiveSource[domain.Execution]
	trades        archiveSource[domain.Trade]
	audit         domain.AuditStore
	log           *slog.Logger
}

// NewArchiver wires the archiver to its sources. Any nil source is
// skipped.
func NewArchiver(
	writer domain.BlobWriter,
	opportunities archiveSource[domain.Opportunity],
	executions archiveSource[domain.Execution],
	trades archiveSource[domain.Trade],
	audit domain.AuditStore,
	log *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:        writer,
		opportunities: opportunities,
		executions:    executions,
		trades:        trades,
		audit:         audit,
		log:           log.With("component", "archiver"),
	}
}

// Run archives every source older than the cutoff and returns the total
// number of rows moved. Sources fail independently; the first error is
// returned after the remaining sources have been attempted.
func (a *Archiver) Run(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	var firstErr error

	record := func(n int64, err error) {
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.opportunities != nil {
		record(archive(ctx, a, "opportunities", a.opportunities, before))
	}
	if a.executions != nil {
		record(archive(ctx, a, "executions", a.executions, before))
	}
	if a.trades != nil {
		record(archive(ctx, a, "trades", a.trades, before))
	}
	if a.audit != nil {
		record(a.archiveAudit(ctx, before))
	}
	return total, firstErr
}

// archive uploads one source's rows older than the cutoff and prunes them.
func archive[T any](ctx context.Context, a *Archiver, kind string, src archiveSource[T], before time.Time) (int64, error) {
	rows, err := src.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s query: %w", kind, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	pruned, err := src.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s prune: %w", kind, err)
	}

	a.log.Info("archived", "kind", kind, "path", path, "rows", len(rows), "pruned", pruned)
	a.recordAudit(ctx, kind, path, int64(len(rows)), before)
	return int64(len(rows)), nil
}

// archiveAudit archives the audit log itself, last, so the run's own
// audit entries survive until the next cycle.
func (a *Archiver) archiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}
	if _, err := a.audit.DeleteBefore(ctx, before); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit prune: %w", err)
	}

	a.log.Info("archived", "kind", "audit", "path", path, "rows", len(entries))
	a.recordAudit(ctx, "audit", path, int64(len(entries)), before)
	return int64(len(entries)), nil
}

func (a *Archiver) recordAudit(ctx context.Context, kind, path string, count int64, before time.Time) {
	if a.audit == nil {
		return
	}
	err := a.audit.Record(ctx, domain.AuditEntry{
		ID:    uuid.New().String(),
		Event: "archive." + kind,
		Actor: "archiver",
		Detail: map[string]any{
			"path":   path,
			"count":  count,
			"before": before.Format(time.RFC3339),
		},
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		a.log.Warn("audit record failed", "kind", kind, "err", err)
	}
}

// archivePath partitions archives by the cutoff's year-month:
//
//	archive/executions/2026-07.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL renders records as newline-delimited JSON.
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
