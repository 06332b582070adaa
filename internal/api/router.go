package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/isdelr/milligram-be/internal/api/handlers"
	"github.com/isdelr/milligram-be/internal/auth"
	"github.com/isdelr/milligram-be/internal/config"
	"github.com/isdelr/milligram-be/internal/metrics"
	"github.com/isdelr/milligram-be/internal/monitoring"
	"github.com/isdelr/milligram-be/internal/services"
	"github.com/isdelr/milligram-be/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// Deps collects everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Issuer   *auth.TokenIssuer
	Users    services.UserServiceProvider
	Posts    services.PostServiceProvider
	Likes    services.LikeServiceProvider
	Comments services.CommentServiceProvider
	Hub      *websocket.Hub
	Store    handlers.Pinger
	Stats    *monitoring.StatsCollector

	// Media serves uploaded files under Config.MediaBaseURL. Nil when media lives elsewhere.
	Media http.Handler
}

// NewRouter creates and configures a new Chi router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		level := zerolog.InfoLevel
		if status >= http.StatusInternalServerError {
			level = zerolog.ErrorLevel
		}
		hlog.FromRequest(r).WithLevel(level).
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	}))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	userHandler := handlers.NewUserHandler(d.Users, d.Issuer, auth.Cookies{Production: d.Config.Production})
	postHandler := handlers.NewPostHandler(d.Posts, d.Config.MaxUploadBytes())
	likeHandler := handlers.NewLikeHandler(d.Likes)
	commentHandler := handlers.NewCommentHandler(d.Comments)
	healthHandler := handlers.NewHealthHandler(d.Store, d.Stats, d.Hub.ClientCount)
	wsHandler := handlers.NewWebSocketHandler(d.Hub, d.Config.AllowedOrigins)

	requireAuth := auth.Middleware(d.Issuer, d.Users, handlers.WriteError)
	authLimit := httprate.Limit(
		d.Config.AuthRateLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"message":"too many attempts, try again later"}` + "\n"))
		}),
	)

	r.Handle("/metrics", metrics.Handler())
	if d.Media != nil {
		r.Handle(strings.TrimRight(d.Config.MediaBaseURL, "/")+"/*", d.Media)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Get)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(authLimit)
				r.Post("/register", userHandler.Register)
				r.Post("/login", userHandler.Login)
			})
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", userHandler.GetMe)
				r.Post("/logout", userHandler.Logout)
			})
		})

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", postHandler.Feed)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", postHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Delete("/", postHandler.Delete)
					r.Post("/likes", likeHandler.Like)
					r.Delete("/likes", likeHandler.Unlike)
					r.Post("/comments", commentHandler.Create)
					r.Get("/comments", commentHandler.List)
				})
			})
		})

		r.Route("/users/{username}", func(r chi.Router) {
			r.Get("/", userHandler.GetProfile)
			r.Get("/posts", postHandler.UserPosts)
		})

		r.With(requireAuth).Get("/ws", wsHandler.Serve)
	})

	return r
}
