package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"emoji-stories/controllers/authentication"
	"emoji-stories/controllers/dashboard"
	"emoji-stories/controllers/middleware"
	"emoji-stories/controllers/stories"
	"emoji-stories/metrics"
	"emoji-stories/storage"
)

// NewRouter registers every route.
func NewRouter(app *App) http.Handler {
	cfg := app.Config
	limiter := middleware.NewRateLimiter(cfg.RateLimit.LoginPerSecond, cfg.RateLimit.LoginBurst, app.Log.Named("ratelimit"))

	auth := &authentication.Handler{
		DB:               app.DB,
		Sessions:         app.Sessions,
		Pages:            app.Pages,
		Stories:          app.Stories,
		Log:              app.Log.Named("auth"),
		JWTKey:           cfg.JWTKey(),
		TokenTTL:         cfg.Auth.TokenTTL,
		Google:           authentication.NewGoogleConfig(cfg.Google),
		GoogleUserinfoFn: app.googleUserinfo,
		Images:           app.Images,
		MaxImageBytes:    cfg.Storage.MaxImageBytes,
		Limiter:          limiter,
	}
	storyHandler := &stories.Handler{
		Stories:  app.Stories,
		Sessions: app.Sessions,
		Pages:    app.Pages,
		Log:      app.Log.Named("stories"),
	}
	dash := &dashboard.Handler{
		Stories: app.Stories,
		Pages:   app.Pages,
		Log:     app.Log.Named("dashboard"),
	}

	user := func(h http.HandlerFunc) http.Handler {
		return auth.RequireUser(h)
	}
	gated := func(h http.HandlerFunc) http.Handler {
		return auth.RequireUser(storyHandler.RequirePosted(h))
	}

	r := mux.NewRouter()
	r.Use(middleware.Recover(app.Log), middleware.Logging(app.Log.Named("http")), metrics.Middleware)

	r.HandleFunc("/", auth.Index).Methods(http.MethodGet)
	r.HandleFunc("/login", auth.Login).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/logout", auth.Logout).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/login/google", auth.HandleGoogleLogin).Methods(http.MethodGet)
	r.HandleFunc("/callback/google", auth.HandleGoogleCallback).Methods(http.MethodGet)
	r.Handle("/api/token", limiter.Limit(http.HandlerFunc(auth.Token))).Methods(http.MethodPost)
	r.HandleFunc("/api/prompt/today", dash.APIPromptToday).Methods(http.MethodGet)

	r.Handle("/dashboard", user(dash.Dashboard)).Methods(http.MethodGet)
	r.Handle("/streak", user(dash.Streak)).Methods(http.MethodGet)
	r.Handle("/api/streak", user(dash.APIStreak)).Methods(http.MethodGet)
	r.Handle("/profile", user(auth.Profile)).Methods(http.MethodGet)
	r.Handle("/profile/image", user(auth.UploadImage)).Methods(http.MethodPost)
	r.Handle("/profile/password", user(auth.ChangePassword)).Methods(http.MethodPost)
	r.Handle("/notifications", user(storyHandler.GetNotifications)).Methods(http.MethodGet)

	r.Handle("/stories", user(storyHandler.CreateStory)).Methods(http.MethodPost)
	r.Handle("/stories", gated(storyHandler.ListStories)).Methods(http.MethodGet)
	r.Handle("/stories/{id:[0-9]+}/edit", user(storyHandler.EditStory)).Methods(http.MethodPost, http.MethodPut)
	r.Handle("/stories/{id:[0-9]+}/like", gated(storyHandler.LikeStory)).Methods(http.MethodPost)
	r.Handle("/stories/{id:[0-9]+}/comments", gated(storyHandler.CreateComment)).Methods(http.MethodPost)
	r.Handle("/comments/{id:[0-9]+}/edit", user(storyHandler.EditComment)).Methods(http.MethodPost, http.MethodPut)
	r.Handle("/comments/{id:[0-9]+}/like", gated(storyHandler.LikeComment)).Methods(http.MethodPost)

	r.HandleFunc("/healthz", healthz(app)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	if local, ok := app.Images.(*storage.LocalStore); ok {
		prefix := local.URLPrefix
		if !strings.HasPrefix(prefix, "/") {
			prefix = "/" + prefix
		}
		files := http.StripPrefix(prefix, http.FileServer(http.Dir(local.Dir)))
		r.PathPrefix(prefix).Handler(noListing(files)).Methods(http.MethodGet)
	}

	return middleware.CorsSettings(cfg.CORS.AllowedOrigins, false).Handler(r)
}

func healthz(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := app.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			app.Log.Warn("health check failed", zap.Error(err))
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}
}

// noListing hides directory indexes of the upload dir.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
