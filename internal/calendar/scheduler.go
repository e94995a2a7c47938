package calendar

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSyncSchedule is the cron spec of the global sync.
const DefaultSyncSchedule = "@every 15m"

// Scheduler runs the global sync periodically and on-demand property syncs
// in the background.
type Scheduler struct {
	cron        *cron.Cron
	syncService *SyncService
	spec        string
	entryID     cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler running the global sync on spec.
func NewScheduler(syncService *SyncService, spec string) *Scheduler {
	if spec == "" {
		spec = DefaultSyncSchedule
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := cron.PrintfLogger(log.Default())

	return &Scheduler{
		cron:        cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		syncService: syncService,
		spec:        spec,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start schedules the global sync and starts the cron loop.
func (s *Scheduler) Start() error {
	log.Println("Starting calendar sync scheduler...")

	id, err := s.cron.AddFunc(s.spec, s.syncAll)
	if err != nil {
		return fmt.Errorf("scheduling sync %q: %w", s.spec, err)
	}
	s.entryID = id

	s.cron.Start()
	log.Printf("Calendar scheduler started, syncing %s", s.spec)

	return nil
}

// Stop cancels the running global sync, so no new property syncs start,
// and waits for the in-flight ones and any triggered syncs to finish.
// Triggers after Stop return ErrSchedulerStopped.
func (s *Scheduler) Stop() {
	log.Println("Stopping calendar sync scheduler...")
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	log.Println("Calendar scheduler stopped")
}

// TriggerProperty syncs one property in the background.
func (s *Scheduler) TriggerProperty(propertyID string) error {
	return s.spawn(func() {
		if _, err := s.syncService.SyncProperty(s.ctx, propertyID); err != nil {
			log.Printf("Property sync failed for %s: %v", propertyID, err)
		}
	})
}

// TriggerAll runs the global sync in the background.
func (s *Scheduler) TriggerAll() error {
	return s.spawn(s.syncAll)
}

// spawn registers fn with the wait group under the same lock Stop takes,
// so no goroutine starts once Stop has begun waiting.
func (s *Scheduler) spawn(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return nil
}

// NextRun returns the next scheduled global sync, if the scheduler runs.
func (s *Scheduler) NextRun() *time.Time {
	entry := s.cron.Entry(s.entryID)
	if entry.Next.IsZero() {
		return nil
	}
	return &entry.Next
}

func (s *Scheduler) syncAll() {
	if s.ctx.Err() != nil {
		return
	}
	if _, err := s.syncService.SyncAll(s.ctx); err != nil {
		log.Printf("Sync run failed: %v", err)
	}
}
