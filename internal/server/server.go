package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/recipebox/apiserver/config"
	"github.com/recipebox/apiserver/internal/db"
	"github.com/recipebox/apiserver/internal/events"
	"github.com/recipebox/apiserver/internal/handlers"
	"github.com/recipebox/apiserver/internal/mq"
	"github.com/recipebox/apiserver/internal/services"
	"github.com/recipebox/apiserver/internal/storage"
)

// requestTimeout bounds every handler. The connection timeouts are derived
// from it so a slow upload reaches the handler deadline before the server
// drops the connection.
const requestTimeout = 60 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	handle     *db.Handle
	objects    *storage.Storage
	queue      *mq.MQ
}

// Deps are the long-lived dependencies the router is built from.
type Deps struct {
	Config  config.Config
	Handle  *db.Handle
	Storage *storage.Storage
	// Events receives recipe lifecycle events. When nil, events are
	// dispatched in-process to an image janitor over Storage.
	Events services.EventPublisher
}

// New opens every configured backend and constructs a Server.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	handle, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = handle.Close(ctx)
		return nil, fmt.Errorf("open storage: %w", err)
	}

	deps := Deps{Config: cfg, Handle: handle, Storage: objects}

	var queue *mq.MQ
	if cfg.MQ.Backend != config.MQNone {
		queue, err = mq.Open(ctx, cfg.MQ)
		if err != nil {
			_ = objects.Close()
			_ = handle.Close(ctx)
			return nil, fmt.Errorf("open message queue: %w", err)
		}
		deps.Events = events.NewPublisher(queue, cfg.MQ.Channel)
	}

	router := NewRouter(deps)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	return &Server{
		httpServer: newHTTPServer(fmt.Sprintf(":%d", port), router),
		router:     router,
		handle:     handle,
		objects:    objects,
		queue:      queue,
	}, nil
}

// NewRouter builds the HTTP routes over deps.
func NewRouter(deps Deps) *chi.Mux {
	cfg := deps.Config
	images := storage.NewImages(deps.Storage, cfg.Storage.MaxUploadBytes)

	publisher := deps.Events
	if publisher == nil {
		publisher = events.NewDispatcher(events.NewJanitor(deps.Storage, slog.Default()))
	}

	userService := services.NewUserService(deps.Handle.Users, cfg.Auth.BcryptCost)
	recipeService := services.NewRecipeService(deps.Handle.Recipes, deps.Handle.Users, images, publisher)

	authHandler := handlers.NewAuthHandler(userService, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	recipeHandler := handlers.NewRecipeHandler(recipeService, cfg.Storage.MaxUploadBytes)
	imageHandler := handlers.NewImageHandler(images)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Location", "X-Total-Count"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.Timeout(requestTimeout),
	)
	router.Get("/healthz", handlers.Healthz(deps.Handle))
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, authHandler)
	})
	router.Route("/recipes", func(r chi.Router) {
		handlers.RecipeRouter(r, recipeHandler, authHandler.RequireAuth)
	})
	router.Route("/images", func(r chi.Router) {
		handlers.ImageRouter(r, imageHandler)
	})

	return router
}

// newHTTPServer gives the handler deadline room to respond with 504 before
// the write timeout closes the connection.
func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       requestTimeout,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       requestTimeout,
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes every backend.
func (s *Server) Shutdown(ctx context.Context) error {
	errs := []error{s.httpServer.Shutdown(ctx)}
	if s.queue != nil {
		errs = append(errs, s.queue.Close())
	}
	if s.objects != nil {
		errs = append(errs, s.objects.Close())
	}
	if s.handle != nil {
		errs = append(errs, s.handle.Close(ctx))
	}
	return errors.Join(errs...)
}
