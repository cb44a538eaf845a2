// Package scheduler runs the nightly rollover: it creates the new day's
// prompt and resets lapsed streaks.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"emoji-stories/services"
)

const jobTimeout = time.Minute

type Daily struct {
	cron    *cron.Cron
	prompts *services.PromptService
	db      *gorm.DB
	log     *zap.Logger
}

// NewDaily schedules the rollover with a standard five-field cron spec
// evaluated in loc.
func NewDaily(spec string, loc *time.Location, prompts *services.PromptService, db *gorm.DB, log *zap.Logger) (*Daily, error) {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &Daily{
		cron:    cron.New(cron.WithLocation(loc)),
		prompts: prompts,
		db:      db,
		log:     log,
	}
	if _, err := d.cron.AddFunc(spec, d.run); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return d, nil
}

func (d *Daily) run() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := d.RunOnce(ctx); err != nil {
		d.log.Error("daily rollover failed", zap.Error(err))
	}
}

// RunOnce performs one rollover for the calendar's current date.
func (d *Daily) RunOnce(ctx context.Context) error {
	daily, err := d.prompts.Today(ctx)
	if err != nil {
		return err
	}
	reset, err := services.ResetLapsed(ctx, d.db, daily.Date)
	if err != nil {
		return err
	}
	d.log.Info("daily rollover",
		zap.String("date", daily.Date),
		zap.Strings("emojis", daily.List()),
		zap.Int64("streaks_reset", reset))
	return nil
}

func (d *Daily) Start() {
	d.cron.Start()
}

// Stop prevents new runs and waits for a running one, or for ctx.
func (d *Daily) Stop(ctx context.Context) {
	select {
	case <-d.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Next is the time of the next scheduled run.
func (d *Daily) Next() time.Time {
	entries := d.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
