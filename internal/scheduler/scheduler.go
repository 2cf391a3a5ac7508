package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// jobTimeout bounds a single run so a stuck job cannot pile up behind itself.
const jobTimeout = 5 * time.Minute

// Job is a unit of background work run on a cron schedule.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron    *cron.Cron
	log     log.FieldLogger
	mu      sync.Mutex
	entries map[string]cron.EntryID // job name -> cron entry
}

func New(logger log.FieldLogger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		log:     logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers job under name. expr uses the standard five-field syntax or a
// descriptor such as "@daily".
func (s *Scheduler) Add(name, expr string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}
	id, err := s.cron.AddFunc(expr, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("scheduler: invalid cron %q for job %q: %w", expr, name, err)
	}
	s.entries[name] = id
	return nil
}

// Next reports when name is due to run next. It is zero until Start.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) Start() {
	s.cron.Start()

	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()
	s.log.WithField("jobs", n).Info("scheduler started")
}

// Stop halts scheduling and returns a context that is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	entry := s.log.WithField("job", name)
	if err := job(ctx); err != nil {
		entry.WithError(err).Warn("scheduled job failed")
		return
	}
	entry.WithField("duration", time.Since(start)).Debug("scheduled job completed")
}
