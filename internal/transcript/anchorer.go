package transcript

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prophecy-labs/prophecyd/internal/cas"
	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/notify"
)

// Anchorer pins transcript bundles to the content-addressable store and
// persists the resulting record. Pinning is best-effort: when the store is
// unreachable the anchorer falls back to the local SHA-256 digest so
// settlement is never blocked on pin availability.
type Anchorer struct {
	store    cas.Store
	records  domain.TranscriptStore
	archive  domain.BlobWriter // optional cold mirror
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewAnchorer creates an Anchorer. archive may be nil to disable the cold
// mirror.
func NewAnchorer(store cas.Store, records domain.TranscriptStore, archive domain.BlobWriter, logger *slog.Logger) *Anchorer {
	return &Anchorer{
		store:   store,
		records: records,
		archive: archive,
		logger:  logger.With(slog.String("component", "anchorer")),
	}
}

// WithNotifier attaches operator notifications for degraded pins.
func (a *Anchorer) WithNotifier(n *notify.Notifier) *Anchorer {
	a.notifier = n
	return a
}

// Anchor encodes and pins the bundle, persists the transcript record, and
// returns it. The anchored digest is SHA-256 of the CID, so the on-ledger
// hash is verifiable against the pinned copy. A pin failure degrades to an
// unpinned record whose digest is SHA-256 of the encoded bundle itself; the
// returned error is non-nil only when encoding or persistence fails.
func (a *Anchorer) Anchor(ctx context.Context, bundle domain.TranscriptBundle) (domain.TranscriptRecord, error) {
	encoded, err := Encode(bundle)
	if err != nil {
		return domain.TranscriptRecord{}, err
	}

	rec := domain.TranscriptRecord{
		MarketID:   bundle.MarketID,
		Digest:     Digest(encoded),
		Bundle:     encoded,
		AnchoredAt: time.Now().UTC(),
	}

	cid, err := a.store.Pin(ctx, encoded)
	if err != nil {
		a.logger.Warn("pin failed, anchoring with local digest",
			slog.String("market_id", bundle.MarketID),
			slog.String("error", err.Error()))
		if a.notifier != nil {
			_ = a.notifier.Notify(ctx, notify.EventPinDegraded,
				"Transcript pin degraded",
				fmt.Sprintf("Market %s anchored with local digest only: %s", bundle.MarketID, err))
		}
	} else {
		rec.CID = cid
		rec.Pinned = true
		rec.Digest = Digest([]byte(cid))
	}

	if err := a.records.Put(ctx, rec); err != nil {
		return domain.TranscriptRecord{}, fmt.Errorf("transcript: persist record for market %s: %w", bundle.MarketID, err)
	}

	a.mirror(rec)

	a.logger.Info("transcript anchored",
		slog.String("market_id", rec.MarketID),
		slog.String("cid", rec.CID),
		slog.Bool("pinned", rec.Pinned))
	return rec, nil
}

// mirror copies the bundle to cold storage in the background. Failures are
// logged and ignored; the pinned copy and the stored record are authoritative.
func (a *Anchorer) mirror(rec domain.TranscriptRecord) {
	if a.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		path := fmt.Sprintf("transcripts/%s/%s.json", rec.MarketID, rec.AnchoredAt.UTC().Format("20060102T150405Z"))
		if err := a.archive.Put(ctx, path, bytes.NewReader(rec.Bundle), "application/json"); err != nil {
			a.logger.Warn("mirror transcript to cold storage",
				slog.String("market_id", rec.MarketID),
				slog.String("error", err.Error()))
		}
	}()
}
