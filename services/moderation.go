package services

import (
	"context"

	"emoji-stories/config"
)

// Verdict is the moderation result for one text.
type Verdict struct {
	Flagged    bool
	Categories []string
}

// Moderator checks user text before it is stored.
type Moderator interface {
	Check(ctx context.Context, text string) (Verdict, error)
}

// NoopModerator passes everything. Used when no API key is configured.
type NoopModerator struct{}

func (NoopModerator) Check(context.Context, string) (Verdict, error) {
	return Verdict{}, nil
}

func NewModerator(cfg config.ModerationConfig) Moderator {
	if cfg.APIKey == "" {
		return NoopModerator{}
	}
	return NewOpenAIModerator(cfg)
}
