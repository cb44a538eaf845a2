package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"emoji-stories/models/prompt"
)

// DefaultPool is used when no emoji pool is configured.
var DefaultPool = []string{
	"🐶", "🐱", "🦊", "🐻", "🐼", "🐸", "🐙", "🦉", "🐝", "🦋",
	"🌵", "🌻", "🍄", "🌊", "🌋", "🌙", "⭐", "☀️", "🌈", "❄️",
	"🍕", "🍩", "🍉", "🍋", "🥑", "☕", "🎂", "🍿", "🧀", "🌶️",
	"🚀", "🚲", "⛵", "🚂", "🎈", "🎸", "🎨", "📚", "🔑", "💡",
	"⏰", "🎁", "🧭", "🕯️", "🗺️", "🏰", "🎩", "👻", "🤖", "👽",
	"💎", "🧲", "🪐", "🔮", "🧩", "🎭", "🏆", "⚽", "🎲", "✉️",
}

type PromptOptions struct {
	Pool     []string
	Count    int
	Calendar Calendar
}

// PromptService hands out one shared emoji set per calendar date.
type PromptService struct {
	db       *gorm.DB
	pool     []string
	count    int
	calendar Calendar
}

func NewPromptService(db *gorm.DB, opts PromptOptions) (*PromptService, error) {
	var pool []string
	seen := map[string]bool{}
	for _, e := range opts.Pool {
		if e = strings.TrimSpace(e); e != "" && !seen[e] {
			seen[e] = true
			pool = append(pool, e)
		}
	}
	if len(opts.Pool) == 0 {
		pool = DefaultPool
	}
	count := opts.Count
	if count <= 0 {
		count = 3
	}
	if len(pool) < count {
		return nil, fmt.Errorf("emoji pool has %d distinct entries, need at least %d", len(pool), count)
	}
	return &PromptService{
		db:       db,
		pool:     pool,
		count:    count,
		calendar: opts.Calendar,
	}, nil
}

func (s *PromptService) Calendar() Calendar {
	return s.calendar
}

// Today returns today's prompt, creating it on first use.
func (s *PromptService) Today(ctx context.Context) (*prompt.DailyEmoji, error) {
	return s.ForDate(ctx, s.calendar.Today())
}

// ForDate returns the prompt for date (YYYY-MM-DD), creating it if missing.
// Concurrent callers converge on the same row: the set is derived from the
// date and the insert ignores a conflicting date.
func (s *PromptService) ForDate(ctx context.Context, date string) (*prompt.DailyEmoji, error) {
	if _, err := time.Parse(prompt.DateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid prompt date %q: %w", date, err)
	}

	var daily prompt.DailyEmoji
	err := s.db.WithContext(ctx).Where("date = ?", date).First(&daily).Error
	if err == nil {
		return &daily, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load prompt for %s: %w", date, err)
	}

	daily = prompt.DailyEmoji{
		Date:   date,
		Emojis: strings.Join(PickEmojis(s.pool, s.count, date), " "),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "date"}}, DoNothing: true}).
		Create(&daily).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create prompt for %s: %w", date, err)
	}

	var stored prompt.DailyEmoji
	if err := s.db.WithContext(ctx).Where("date = ?", date).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to reload prompt for %s: %w", date, err)
	}
	return &stored, nil
}

// PickEmojis chooses count distinct entries of pool, deterministically for a
// given date.
func PickEmojis(pool []string, count int, date string) []string {
	if count > len(pool) {
		count = len(pool)
	}
	h := fnv.New64a()
	h.Write([]byte(date))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	picked := make([]string, 0, count)
	for _, i := range rng.Perm(len(pool))[:count] {
		picked = append(picked, pool[i])
	}
	return picked
}
