package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// Archiver exports settlement records to cold storage as JSONL files,
// partitioned by year-month. Exports are read-only snapshots; nothing is
// deleted from the primary store here.
type Archiver struct {
	writer *Writer
	reader *Reader
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer *Writer, reader *Reader, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		audit:  audit,
	}
}

// ArchiveAudit exports all audit entries strictly before the cutoff to
// archive/audit/YYYY-MM.jsonl and verifies the upload landed. The count of
// exported entries is returned.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.List(ctx, domain.ListOpts{Until: &before})
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

	ok, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit verify: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("s3blob: archive audit verify: %s missing after upload", path)
	}

	count := int64(len(entries))
	logErr := a.audit.Log(ctx, domain.AuditEntry{
		Action:    "audit_archived",
		Actor:     "archiver",
		Subject:   path,
		CreatedAt: time.Now().UTC(),
	})
	if logErr != nil {
		return count, fmt.Errorf("s3blob: archive audit log: %w", logErr)
	}
	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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
