package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/ObiAU/newssearch/internal/logging"
)

// Janitor evicts cache entries on a cron schedule such as "@every 1h".
type Janitor struct {
	cron  *cron.Cron
	store Store
	log   *slog.Logger
}

func StartJanitor(store Store, schedule string) (*Janitor, error) {
	j := &Janitor{
		cron:  cron.New(),
		store: store,
		log:   logging.New("cache"),
	}
	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return nil, fmt.Errorf("invalid eviction schedule %q: %w", schedule, err)
	}
	j.cron.Start()
	return j, nil
}

func (j *Janitor) run() {
	removed, err := j.store.Evict(context.Background())
	if err != nil {
		j.log.Error("cache eviction failed", "error", err)
		return
	}
	if removed > 0 {
		j.log.Info("evicted cache entries", "removed", removed)
	}
}

// Stop halts the schedule and waits for a running eviction to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
