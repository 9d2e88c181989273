package usecase

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/feedsync/backend/internal/domain"
	"github.com/google/uuid"
)

const (
	maxErrorRunes    = 300
	defaultRunsLimit = 20
	defaultBatchSize = 50
)

// SyncServiceConfig holds configuration for the sync service
type SyncServiceConfig struct {
	FeedURL        string
	BatchSize      int
	BatchPause     time.Duration
	SkipUnchanged  bool
	FingerprintTTL time.Duration
	Grouping       GrouperOptions
	Reconcile      ReconcilerOptions
}

// SyncService runs the feed to catalog pipeline. At most one run is active at a time.
type SyncService struct {
	feed       domain.FeedSource
	grouper    *Grouper
	reconciler *Reconciler
	cache      domain.CacheRepository
	runs       domain.RunRepository
	events     domain.EventPublisher
	config     SyncServiceConfig

	mu    sync.Mutex
	sleep func(ctx context.Context, d time.Duration) error

	background sync.WaitGroup
	cancelMu   sync.Mutex
	cancelRun  context.CancelFunc
	now   func() time.Time
}

// NewSyncService creates a new sync service with dependencies.
// cache, runs and events may be nil.
func NewSyncService(
	feed domain.FeedSource,
	catalog domain.CatalogClient,
	cache domain.CacheRepository,
	runs domain.RunRepository,
	events domain.EventPublisher,
	config SyncServiceConfig,
) *SyncService {
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.BatchPause < 0 {
		config.BatchPause = 0
	}
	if config.FingerprintTTL == 0 {
		config.FingerprintTTL = 24 * time.Hour
	}

	return &SyncService{
		feed:       feed,
		grouper:    NewGrouper(config.Grouping),
		reconciler: NewReconciler(catalog, config.Reconcile),
		cache:      cache,
		runs:       runs,
		events:     events,
		config:     config,
		sleep:      sleepContext,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one sync run and waits for it to finish.
// Feed and run-context failures are returned; per-product failures are only counted.
func (s *SyncService) Run(ctx context.Context) (*domain.RunReport, error) {
	if !s.mu.TryLock() {
		return nil, domain.ErrRunInProgress
	}
	defer s.mu.Unlock()

	report := s.newReport()
	err := s.execute(ctx, report)
	return report, err
}

// Start launches a run in the background and returns its id.
// The run is detached from the cancellation of ctx; Shutdown waits for it.
func (s *SyncService) Start(ctx context.Context) (string, error) {
	if !s.mu.TryLock() {
		return "", domain.ErrRunInProgress
	}

	report := s.newReport()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelMu.Lock()
	s.cancelRun = cancel
	s.cancelMu.Unlock()

	s.background.Add(1)
	go func() {
		defer s.mu.Unlock()
		defer s.background.Done()
		defer func() {
			s.cancelMu.Lock()
			s.cancelRun = nil
			s.cancelMu.Unlock()
			cancel()
		}()
		if err := s.execute(runCtx, report); err != nil {
			log.Printf("[SYNC] Run %s failed: %s", report.ID, truncate(err.Error(), maxErrorRunes))
		}
	}()
	return report.ID, nil
}

// Shutdown waits for a run launched by Start. If ctx ends first, the run is
// canceled, logged as abandoned and ctx's error is returned.
func (s *SyncService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.cancelMu.Lock()
		if s.cancelRun != nil {
			s.cancelRun()
		}
		s.cancelMu.Unlock()
		log.Printf("[SYNC] Background run abandoned at shutdown: %v", ctx.Err())
		return ctx.Err()
	}
}

// LastRuns returns the most recent run reports, newest first
func (s *SyncService) LastRuns(ctx context.Context, limit int) ([]domain.RunReport, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	if s.runs == nil {
		return []domain.RunReport{}, nil
	}
	return s.runs.ListRuns(ctx, limit)
}

// Outcomes returns the per-product outcomes of one run
func (s *SyncService) Outcomes(ctx context.Context, runID string) ([]domain.ProductOutcome, error) {
	if runID == "" {
		return nil, domain.ErrInvalidRequest
	}
	if s.runs == nil {
		return []domain.ProductOutcome{}, nil
	}
	return s.runs.ListOutcomes(ctx, runID)
}

func (s *SyncService) newReport() *domain.RunReport {
	return &domain.RunReport{
		ID:        uuid.NewString(),
		StartedAt: s.now(),
	}
}

// execute runs the pipeline and records the report
func (s *SyncService) execute(ctx context.Context, report *domain.RunReport) error {
	log.Printf("[SYNC] Run %s started", report.ID)
	s.saveRun(ctx, report)

	err := s.pipeline(ctx, report)

	finished := s.now()
	report.FinishedAt = &finished
	if err != nil {
		report.Error = truncate(err.Error(), maxErrorRunes)
	}
	s.saveRun(ctx, report)

	log.Printf("[SYNC] processed %d/%d (created %d, updated %d, unchanged %d, skipped %d, failed %d)",
		report.Processed, report.Total, report.Created, report.Updated, report.Unchanged, report.Skipped, report.Failed)
	return err
}

// pipeline: fetch feed -> group -> resolve run context -> reconcile each product in batches
func (s *SyncService) pipeline(ctx context.Context, report *domain.RunReport) error {
	items, err := s.feed.Fetch(ctx, s.config.FeedURL)
	if err != nil {
		return err
	}

	products := s.grouper.Group(items)
	report.Total = len(products)
	log.Printf("[SYNC] %d feed items grouped into %d products", len(items), len(products))

	rc, err := s.reconciler.NewRunContext(ctx)
	if err != nil {
		return err
	}

	for i := range products {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && i%s.config.BatchSize == 0 && s.config.BatchPause > 0 {
			log.Printf("[SYNC] %d/%d done, pausing %v", i, len(products), s.config.BatchPause)
			if err := s.sleep(ctx, s.config.BatchPause); err != nil {
				return err
			}
		}

		outcome := s.process(ctx, rc, &products[i])
		outcome.RunID = report.ID
		tally(report, outcome)

		s.saveOutcome(ctx, outcome)
		s.publish(ctx, outcome)
	}
	return nil
}

// process reconciles one product unless its fingerprint shows it is unchanged
func (s *SyncService) process(ctx context.Context, rc *RunContext, p *domain.LogicalProduct) *domain.ProductOutcome {
	var fingerprint string
	if s.config.SkipUnchanged && s.cache != nil {
		fp, err := Fingerprint(p)
		if err != nil {
			log.Printf("[SYNC] %v", err)
		}
		fingerprint = fp
		if id, indexed := rc.Index[p.FamilyKey]; indexed && fp != "" && s.fingerprintMatches(ctx, p.FamilyKey, fp) {
			log.Printf("[SYNC] unchanged %q (fingerprint)", p.Title)
			return &domain.ProductOutcome{
				FamilyKey: p.FamilyKey,
				ProductID: id,
				Title:     p.Title,
				Action:    domain.ActionUnchanged,
				At:        s.now(),
			}
		}
	}

	outcome, err := s.reconciler.Reconcile(ctx, rc, p)
	if err != nil {
		log.Printf("[SYNC] failed %q: %s", p.Title, truncate(err.Error(), maxErrorRunes))
		return outcome
	}

	if fingerprint != "" && outcome.Failures == 0 && outcome.Action != domain.ActionSkipped {
		if err := s.cache.Set(ctx, fingerprintKey(p.FamilyKey), fingerprint, s.config.FingerprintTTL); err != nil {
			log.Printf("[SYNC] Failed to store fingerprint of %q: %v", p.FamilyKey, err)
		}
	}
	return outcome
}

func (s *SyncService) fingerprintMatches(ctx context.Context, familyKey, fingerprint string) bool {
	cached, err := s.cache.Get(ctx, fingerprintKey(familyKey))
	if err != nil {
		return false
	}
	return fmt.Sprint(cached) == fingerprint
}

func tally(report *domain.RunReport, outcome *domain.ProductOutcome) {
	switch outcome.Action {
	case domain.ActionCreated:
		report.Created++
	case domain.ActionUpdated:
		report.Updated++
	case domain.ActionUnchanged:
		report.Unchanged++
	case domain.ActionSkipped:
		report.Skipped++
	default:
		report.Failed++
		return
	}
	report.Processed++
}

func (s *SyncService) saveRun(ctx context.Context, report *domain.RunReport) {
	if s.runs == nil {
		return
	}
	if err := s.runs.SaveRun(ctx, report); err != nil {
		log.Printf("[SYNC] Failed to save run %s: %v", report.ID, err)
	}
}

func (s *SyncService) saveOutcome(ctx context.Context, outcome *domain.ProductOutcome) {
	if s.runs == nil {
		return
	}
	if err := s.runs.SaveOutcome(ctx, outcome); err != nil {
		log.Printf("[SYNC] Failed to save outcome of %q: %v", outcome.FamilyKey, err)
	}
}

func (s *SyncService) publish(ctx context.Context, outcome *domain.ProductOutcome) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, outcome); err != nil {
		log.Printf("[SYNC] Failed to publish outcome of %q: %v", outcome.FamilyKey, err)
	}
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
