// Package server wires configuration, storage and handlers into the HTTP
// server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"emoji-stories/config"
	"emoji-stories/controllers/authentication"
	"emoji-stories/controllers/websession"
	"emoji-stories/services"
	"emoji-stories/storage"
	"emoji-stories/templates"
)

// App holds the long-lived services behind the handlers.
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	Prompts  *services.PromptService
	Stories  *services.StoryService
	Sessions *websession.Manager
	Images   storage.ImageStore
	Pages    *templates.Pages

	googleUserinfo authentication.UserinfoFunc
}

type Option func(*options)

type options struct {
	calendar       *services.Calendar
	moderator      services.Moderator
	images         storage.ImageStore
	googleUserinfo authentication.UserinfoFunc
}

// WithCalendar overrides the clock used for prompt dates and streaks.
func WithCalendar(c services.Calendar) Option {
	return func(o *options) { o.calendar = &c }
}

func WithModerator(m services.Moderator) Option {
	return func(o *options) { o.moderator = m }
}

func WithImageStore(s storage.ImageStore) Option {
	return func(o *options) { o.images = s }
}

func WithGoogleUserinfo(fn authentication.UserinfoFunc) Option {
	return func(o *options) { o.googleUserinfo = fn }
}

// NewApp builds the services for cfg on top of an open database.
func NewApp(ctx context.Context, cfg *config.Config, db *gorm.DB, log *zap.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = zap.NewNop()
	}

	calendar := services.NewCalendar(cfg.Location())
	if o.calendar != nil {
		calendar = *o.calendar
	}
	prompts, err := services.NewPromptService(db, services.PromptOptions{
		Pool:     cfg.Prompt.Pool,
		Count:    cfg.Prompt.Count,
		Calendar: calendar,
	})
	if err != nil {
		return nil, err
	}

	moderator := o.moderator
	if moderator == nil {
		moderator = services.NewModerator(cfg.Moderation)
	}
	if _, ok := moderator.(services.NoopModerator); ok {
		log.Info("moderation disabled, no api key configured")
	}

	images := o.images
	if images == nil {
		images, err = newImageStore(ctx, cfg.Storage, log)
		if err != nil {
			return nil, err
		}
	}

	if cfg.UsesDefaultSecret() {
		log.Warn("session secret is the development default, set SECRET_KEY in production")
	}
	sessions := websession.NewManager(config.NewSessionStore(cfg.Session))

	renderer, err := templates.New()
	if err != nil {
		return nil, err
	}

	return &App{
		Config:         cfg,
		DB:             db,
		Log:            log,
		Prompts:        prompts,
		Stories:        services.NewStoryService(db, prompts, moderator, log.Named("stories")),
		Sessions:       sessions,
		Images:         images,
		Pages:          &templates.Pages{Renderer: renderer, Sessions: sessions, Log: log},
		googleUserinfo: o.googleUserinfo,
	}, nil
}

func newImageStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (storage.ImageStore, error) {
	if cfg.DriveFolderID != "" && cfg.DriveCredentialsFile != "" {
		log.Info("storing profile images in Google Drive", zap.String("folder", cfg.DriveFolderID))
		return storage.NewDriveStore(ctx, cfg.DriveCredentialsFile, cfg.DriveFolderID)
	}
	return storage.NewLocalStore(cfg.UploadDir, cfg.URLPrefix)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
