package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/carelyhq/carely/internal/memory"
	"github.com/carelyhq/carely/internal/store"
)

// Scheduler runs the nightly episodic summarization: one narrative
// summary per user per civil day, written to the episodic store and
// mirrored into the long-term index.
type Scheduler struct {
	store    *store.Store
	episodic *memory.EpisodicMemory
	longTerm *memory.LongTermStore
	cron     *cron.Cron
	spec     string
}

func NewScheduler(s *store.Store, episodic *memory.EpisodicMemory, longTerm *memory.LongTermStore, spec string) *Scheduler {
	return &Scheduler{
		store:    s,
		episodic: episodic,
		longTerm: longTerm,
		cron:     cron.New(),
		spec:     spec,
	}
}

func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.RunDailySummaries(ctx, time.Now()); err != nil {
			log.Printf("[scheduler] daily summaries: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule daily summary job: %w", err)
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RunDailySummaries summarizes the given civil day for every user. One
// user failing does not stop the rest.
func (s *Scheduler) RunDailySummaries(ctx context.Context, day time.Time) error {
	users, err := s.store.ListUsers()
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	for _, u := range users {
		d, err := s.episodic.SummarizeDay(ctx, u.ID, day)
		if err != nil {
			log.Printf("[scheduler] summarize day for user %d: %v", u.ID, err)
			continue
		}
		if d == nil {
			continue
		}
		if err := s.longTerm.IndexSummary(ctx, u.ID, d.Date, d.Summary, d.KeyTopics); err != nil {
			log.Printf("[scheduler] index summary for user %d: %v", u.ID, err)
		}
	}
	return nil
}
