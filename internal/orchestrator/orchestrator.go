// Package orchestrator runs the per-source scrape state machine and
// sequences batches over the configured sources.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/listingwatch/internal/changedetect"
	"github.com/JakeFAU/listingwatch/internal/metrics"
	"github.com/JakeFAU/listingwatch/internal/scraper"
)

const defaultDelay = 2 * time.Second

// Audit messages written for the non-success outcomes.
const (
	MessageUnchanged = "Content unchanged since last scrape"
)

// Config controls the orchestrator.
type Config struct {
	// Delay is the pause between consecutive sources of a batch.
	Delay time.Duration
	// Indicators are the listing-page link terms used for discovery.
	Indicators []string
}

// Outcome is the result of processing one source.
type Outcome struct {
	Source       string
	Status       scraper.AuditStatus
	Changed      bool
	Extracted    int
	RecordsFound int
	Message      string
	Err          error
}

// Orchestrator wires the fetcher, extractor, and store into the per-source
// state machine.
type Orchestrator struct {
	fetcher   scraper.Fetcher
	extractor scraper.Extractor
	store     scraper.Store
	clock     scraper.Clock
	pauser    pauser
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator. A nil clock uses the system clock and a
// nil logger discards output.
func New(
	fetcher scraper.Fetcher,
	extractor scraper.Extractor,
	store scraper.Store,
	clock scraper.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if clock == nil {
		clock = scraper.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	return &Orchestrator{
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		clock:     clock,
		pauser:    timerPauser{},
		cfg:       cfg,
		logger:    logger,
	}
}

// ProcessSource visits one source. Unless force is set, extraction is
// skipped when the page fingerprint matches the stored one. Exactly one audit
// entry is written per call; store failures are logged and do not change the
// outcome.
func (o *Orchestrator) ProcessSource(ctx context.Context, src scraper.Source, force bool) Outcome {
	logger := o.logger.With(zap.String("source", src.Name))
	started := o.clock.Now()

	listingURL, err := o.resolveListingURL(ctx, src)
	if err != nil {
		return o.fail(ctx, logger, src, err)
	}

	page, err := o.fetcher.Fetch(ctx, listingURL, false)
	if err != nil {
		return o.fail(ctx, logger, src, err)
	}

	fingerprint := changedetect.Fingerprint(page.Doc)
	prev, err := o.store.GetPageState(ctx, src.Name)
	if err != nil {
		logger.Warn("load page state failed; treating as changed", zap.Error(err))
		prev = nil
	}
	changed := prev == nil || changedetect.HasChanged(prev.ContentFingerprint, fingerprint)

	if !changed && !force {
		state := *prev
		state.ListingURL = listingURL
		state.ContentFingerprint = fingerprint
		state.LastScraped = started
		o.saveState(ctx, logger, state)
		out := Outcome{Source: src.Name, Status: scraper.AuditUnchanged, Message: MessageUnchanged}
		o.audit(ctx, logger, out)
		logger.Info("listing unchanged", zap.String("url", listingURL))
		return out
	}

	records := o.extractor.Extract(page.Doc, src.Name, page.URL)
	inserted := 0
	for _, rec := range records {
		ok, err := o.store.UpsertRecord(ctx, rec)
		if err != nil {
			logger.Error("store record failed", zap.String("url", rec.CanonicalURL), zap.Error(err))
			continue
		}
		if ok {
			inserted++
		}
	}
	metrics.ObserveRecordsInserted(inserted)

	lastModified := started
	if !changed {
		// Forced re-extraction of an unchanged page does not move LastModified.
		lastModified = prev.LastModified
	}
	o.saveState(ctx, logger, scraper.PageState{
		SourceName:         src.Name,
		ListingURL:         listingURL,
		ContentFingerprint: fingerprint,
		LastScraped:        started,
		LastModified:       lastModified,
		RecordCount:        inserted,
	})

	out := Outcome{
		Source:       src.Name,
		Status:       scraper.AuditSuccess,
		Changed:      changed,
		Extracted:    len(records),
		RecordsFound: inserted,
		Message:      fmt.Sprintf("Found %d new records (%d extracted)", inserted, len(records)),
	}
	o.audit(ctx, logger, out)
	logger.Info("listing processed",
		zap.String("url", listingURL),
		zap.Bool("changed", changed),
		zap.Bool("headless", page.UsedHeadless),
		zap.Int("extracted", len(records)),
		zap.Int("inserted", inserted))
	return out
}

func (o *Orchestrator) resolveListingURL(ctx context.Context, src scraper.Source) (string, error) {
	if src.ListingURL != "" {
		return src.ListingURL, nil
	}
	found, err := o.fetcher.DiscoverListingURL(ctx, src.BaseURL, o.cfg.Indicators)
	if err != nil {
		return "", fmt.Errorf("%w: %w", scraper.ErrNoListingPage, err)
	}
	if found == "" {
		return "", scraper.ErrNoListingPage
	}
	return found, nil
}

func (o *Orchestrator) fail(ctx context.Context, logger *zap.Logger, src scraper.Source, err error) Outcome {
	out := Outcome{Source: src.Name, Status: scraper.AuditFailed, Message: err.Error(), Err: err}
	var fe *scraper.FetchError
	switch {
	case errors.Is(err, scraper.ErrNoListingPage):
		logger.Warn("no listing page", zap.String("base_url", src.BaseURL), zap.Error(err))
	case errors.As(err, &fe):
		logger.Warn("fetch failed", zap.String("url", fe.URL), zap.String("reason", fe.Reason), zap.Error(err))
	default:
		logger.Error("source failed", zap.Error(err))
	}
	o.audit(ctx, logger, out)
	return out
}

func (o *Orchestrator) saveState(ctx context.Context, logger *zap.Logger, state scraper.PageState) {
	if err := o.store.UpsertPageState(ctx, state); err != nil {
		logger.Error("save page state failed", zap.Error(err))
	}
}

// audit writes the entry with a detached context so cancellation of the
// batch cannot drop the record of a visit that already happened.
func (o *Orchestrator) audit(ctx context.Context, logger *zap.Logger, out Outcome) {
	metrics.ObserveSource(string(out.Status))
	entry := scraper.AuditEntry{
		SourceName:   out.Source,
		Status:       out.Status,
		Message:      out.Message,
		RecordsFound: out.RecordsFound,
		Timestamp:    o.clock.Now(),
	}
	if id, err := uuid.NewV7(); err == nil {
		entry.ID = id.String()
	}
	if err := o.store.AppendAudit(context.WithoutCancel(ctx), entry); err != nil {
		logger.Error("append audit failed", zap.Error(err))
	}
}
