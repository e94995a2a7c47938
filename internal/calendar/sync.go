package calendar

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stayledger/backend/internal/storage/models"
	"github.com/stayledger/backend/internal/workitem"
)

// Default orchestration limits.
const (
	DefaultOriginWorkers   = 3
	DefaultPropertyWorkers = 8
	DefaultPropertyTimeout = 60 * time.Second
)

// Fetcher downloads a feed document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Notifier receives sync outcomes. Implementations must not block.
type Notifier interface {
	PropertySynced(summary *models.PropertySummary)
	RunCompleted(summary *models.RunSummary)
	ConflictDetected(propertyID string, origin models.Origin, description string)
}

// Options bounds the concurrency and duration of syncs. StoreRetries is
// the number of retries of a failed persistence call; zero disables them.
type Options struct {
	OriginWorkers   int
	PropertyWorkers int
	PropertyTimeout time.Duration
	StoreRetries    int
	StoreRetryBase  time.Duration
}

func (o *Options) normalize() {
	if o.OriginWorkers <= 0 {
		o.OriginWorkers = DefaultOriginWorkers
	}
	if o.PropertyWorkers <= 0 {
		o.PropertyWorkers = DefaultPropertyWorkers
	}
	if o.PropertyTimeout <= 0 {
		o.PropertyTimeout = DefaultPropertyTimeout
	}
	if o.StoreRetries < 0 {
		o.StoreRetries = 0
	}
	if o.StoreRetryBase <= 0 {
		o.StoreRetryBase = DefaultStoreRetryBase
	}
}

func (o Options) storeRetry() StoreRetry {
	return StoreRetry{Retries: o.StoreRetries, Base: o.StoreRetryBase}
}

// SyncService pulls the feeds of properties and reconciles them.
type SyncService struct {
	store      Store
	fetcher    Fetcher
	parser     *Parser
	normalizer *Normalizer
	reconciler *Reconciler
	projector  *workitem.Projector
	locker     *PropertyLocker
	opts       Options
	now        func() time.Time

	notifierMu sync.RWMutex
	notifier   Notifier
}

// NewSyncService wires a sync service over the given persistence port.
func NewSyncService(store Store, fetcher Fetcher, normalizer *Normalizer, opts Options) *SyncService {
	opts.normalize()
	if normalizer == nil {
		normalizer = NewNormalizer(0, 0)
	}
	projector := workitem.NewProjector(store)

	return &SyncService{
		store:      store,
		fetcher:    fetcher,
		parser:     NewParser(),
		normalizer: normalizer,
		reconciler: NewReconciler(store, projector, opts.storeRetry()),
		projector:  projector,
		locker:     NewPropertyLocker(),
		opts:       opts,
		now:        time.Now,
	}
}

// SetNotifier installs the receiver of sync outcomes.
func (s *SyncService) SetNotifier(n Notifier) {
	s.notifierMu.Lock()
	defer s.notifierMu.Unlock()
	s.notifier = n
}

func (s *SyncService) notify(fn func(Notifier)) {
	s.notifierMu.RLock()
	n := s.notifier
	s.notifierMu.RUnlock()
	if n != nil {
		fn(n)
	}
}

// pulled is the normalized content of one origin's feed.
type pulled struct {
	feed    models.FeedSubscription
	events  []models.CalendarEvent
	skipped int
	err     error
}

// SyncProperty pulls every active feed of the property and reconciles them
// one origin at a time under the property lock. Failures are recorded per
// origin in the summary; the returned error is reserved for an invalid or
// unknown property.
func (s *SyncService) SyncProperty(ctx context.Context, propertyID string) (*models.PropertySummary, error) {
	if strings.TrimSpace(propertyID) == "" {
		return nil, ErrInvalidProperty
	}

	var property *models.Property
	err := s.opts.storeRetry().Do(ctx, "getting property", func() error {
		var err error
		property, err = s.store.GetProperty(ctx, propertyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if property == nil {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, propertyID)
	}

	summary := &models.PropertySummary{
		PropertyID: propertyID,
		StartedAt:  s.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.PropertyTimeout)
	defer cancel()

	var feeds []models.FeedSubscription
	err = s.opts.storeRetry().Do(ctx, "listing feeds", func() error {
		var err error
		feeds, err = s.store.ListFeeds(ctx, propertyID)
		return err
	})
	if err != nil {
		log.Printf("Failed to list feeds of property %s: %v", propertyID, err)
		summary.AddStoreError(err.Error())
		summary.Finalize()
		s.notify(func(n Notifier) { n.PropertySynced(summary) })
		return summary, nil
	}

	var active []models.FeedSubscription
	for _, f := range feeds {
		if f.Active() {
			active = append(active, f)
		}
	}

	log.Printf("Syncing property: %s (%d feeds)", propertyID, len(active))

	ref := s.now()
	results := s.pullAll(ctx, propertyID, active, ref)

	// Reconciliation writes are never interrupted; the ceiling only stops
	// passes that have not started yet.
	detached := context.WithoutCancel(ctx)

	unlock, lockErr := s.locker.Lock(ctx, propertyID)
	if lockErr == nil {
		defer unlock()
	}

	for _, res := range results {
		run := s.reconcileOrigin(ctx, detached, propertyID, res, lockErr)
		summary.Origins = append(summary.Origins, run)
		s.recordFeedStatus(detached, propertyID, run)

		for _, c := range run.Conflicts {
			s.notify(func(n Notifier) { n.ConflictDetected(propertyID, run.Origin, c) })
		}
	}

	if lockErr == nil {
		s.repair(detached, summary)
	}

	summary.Finalize()

	if summary.Status != models.PropertyFailed {
		at := s.now().UTC()
		err := s.opts.storeRetry().Do(detached, "recording last sync", func() error {
			return s.store.SetLastSyncedAt(detached, propertyID, at)
		})
		if err != nil {
			log.Printf("Failed to record last sync of property %s: %v", propertyID, err)
			summary.AddStoreError(err.Error())
			summary.Finalize()
		} else {
			summary.LastSyncedAt = &at
		}
	}

	inserted, updated, deleted := summary.Totals()
	log.Printf("Property sync %s for %s: %d inserted, %d updated, %d deleted, %d origin errors",
		summary.Status, propertyID, inserted, updated, deleted, summary.OriginErrors)

	s.notify(func(n Notifier) { n.PropertySynced(summary) })
	return summary, nil
}

// pullAll fetches, parses and normalizes the feeds concurrently. Results
// keep the order of feeds.
func (s *SyncService) pullAll(ctx context.Context, propertyID string, feeds []models.FeedSubscription, ref time.Time) []pulled {
	results := make([]pulled, len(feeds))

	g := new(errgroup.Group)
	g.SetLimit(s.opts.OriginWorkers)
	for i, feed := range feeds {
		g.Go(func() error {
			results[i] = s.pull(ctx, propertyID, feed, ref)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *SyncService) pull(ctx context.Context, propertyID string, feed models.FeedSubscription, ref time.Time) pulled {
	res := pulled{feed: feed}

	if err := s.store.UpdateFeedStatus(ctx, propertyID, feed.Origin, models.SyncStatusSyncing, nil); err != nil {
		log.Printf("Failed to update sync status: %v", err)
	}

	data, err := s.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		res.err = fmt.Errorf("fetching %s feed: %w", feed.Origin, err)
		return res
	}

	entries, err := s.parser.Parse(data)
	if err != nil {
		res.err = fmt.Errorf("parsing %s feed: %w", feed.Origin, err)
		return res
	}

	res.events, res.skipped = s.normalizer.NormalizeAll(feed.Origin, entries, ref)
	return res
}

func (s *SyncService) reconcileOrigin(ctx, detached context.Context, propertyID string, res pulled, lockErr error) *models.SyncRun {
	origin := res.feed.Origin

	fail := func(err error) *models.SyncRun {
		log.Printf("Failed to sync %s feed for property %s: %v", origin, propertyID, err)
		run := &models.SyncRun{PropertyID: propertyID, Origin: origin, Skipped: res.skipped}
		run.Fail(err)
		return run
	}

	switch {
	case res.err != nil:
		return fail(res.err)
	case lockErr != nil:
		return fail(fmt.Errorf("waiting for property lock: %w", lockErr))
	case ctx.Err() != nil:
		return fail(fmt.Errorf("not reconciled: %w", ctx.Err()))
	}

	run, err := s.reconciler.Reconcile(detached, propertyID, origin, res.events)
	run.Skipped = res.skipped
	if err != nil {
		log.Printf("Failed to reconcile %s feed for property %s: %v", origin, propertyID, err)
	}
	return run
}

func (s *SyncService) recordFeedStatus(ctx context.Context, propertyID string, run *models.SyncRun) {
	status, syncErr := models.SyncStatusSuccess, (*string)(nil)
	if run.Failed() {
		status, syncErr = models.SyncStatusError, &run.Error
	}
	if err := s.store.UpdateFeedStatus(ctx, propertyID, run.Origin, status, syncErr); err != nil {
		log.Printf("Failed to update sync status: %v", err)
	}
}

// repair catches up work items whose writes failed during this or an
// earlier run.
func (s *SyncService) repair(ctx context.Context, summary *models.PropertySummary) {
	var events []models.CalendarEvent
	err := s.opts.storeRetry().Do(ctx, "listing events for repair", func() error {
		var err error
		events, err = s.store.ListEvents(ctx, summary.PropertyID, "")
		return err
	})
	if err != nil {
		summary.AddStoreError(err.Error())
		return
	}

	result, err := s.projector.Repair(ctx, summary.PropertyID, events)
	summary.Repair = result
	if err != nil {
		log.Printf("Failed to repair work items for property %s: %v", summary.PropertyID, err)
		summary.Errors = append(summary.Errors, fmt.Sprintf("repairing work items: %v", err))
	}
}

// SyncAll syncs every property with at least one active feed on a bounded
// pool. Cancelling ctx stops new property syncs from starting; those
// already running finish.
func (s *SyncService) SyncAll(ctx context.Context) (*models.RunSummary, error) {
	var ids []string
	err := s.opts.storeRetry().Do(ctx, "listing syncable properties", func() error {
		var err error
		ids, err = s.store.ListSyncableProperties(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	run := &models.RunSummary{
		Total:     len(ids),
		StartedAt: s.now().UTC(),
	}
	log.Printf("Syncing %d properties", len(ids))

	var mu sync.Mutex
	detached := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(s.opts.PropertyWorkers)
	for _, id := range ids {
		if ctx.Err() != nil {
			mu.Lock()
			run.NotStarted++
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				run.NotStarted++
				mu.Unlock()
				return nil
			}

			summary, err := s.SyncProperty(detached, id)
			if err != nil {
				log.Printf("Error syncing property %s: %v", id, err)
				summary = &models.PropertySummary{
					PropertyID: id,
					Status:     models.PropertyFailed,
					Errors:     []string{err.Error()},
				}
			}

			mu.Lock()
			run.Add(summary)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(run.Properties, func(i, j int) bool {
		return run.Properties[i].PropertyID < run.Properties[j].PropertyID
	})
	run.FinishedAt = s.now().UTC()

	log.Printf("Sync run completed: %d total, %d succeeded, %d partially failed, %d failed, %d not started",
		run.Total, run.Succeeded, run.PartiallyFailed, run.Failed, run.NotStarted)

	s.notify(func(n Notifier) { n.RunCompleted(run) })
	return run, nil
}
