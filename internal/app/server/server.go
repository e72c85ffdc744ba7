package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"loophr/internal/domain/audit"
	"loophr/internal/domain/auth"
	"loophr/internal/domain/directory"
	"loophr/internal/domain/feedback"
	"loophr/internal/domain/kpi"
	"loophr/internal/domain/notifications"
	"loophr/internal/platform/config"
	"loophr/internal/platform/db"
	"loophr/internal/platform/metrics"
	authhandler "loophr/internal/transport/http/handlers/auth"
	directoryhandler "loophr/internal/transport/http/handlers/directory"
	feedbackhandler "loophr/internal/transport/http/handlers/feedback"
	kpihandler "loophr/internal/transport/http/handlers/kpi"
	notificationshandler "loophr/internal/transport/http/handlers/notifications"
	"loophr/internal/transport/http/api"
	"loophr/internal/transport/http/middleware"
	"loophr/internal/transport/http/shared"
)

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Router  http.Handler
	Metrics *metrics.Registry
}

// New connects, migrates, seeds and builds the router. Callers own the
// pool's lifetime via Close.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, "migrations"); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	app := &App{
		Config:  cfg,
		DB:      pool,
		Metrics: metrics.New(),
	}
	app.Router = app.buildRouter()
	return app, nil
}

func (a *App) Close() {
	a.DB.Close()
}

func (a *App) buildRouter() http.Handler {
	cfg := a.Config

	authStore := auth.NewStore(a.DB)
	directoryStore := directory.NewStore(a.DB)
	kpiService := kpi.NewService(a.DB)
	feedbackService := feedback.NewService(a.DB)
	notifier := notifications.NewService(a.DB)
	auditor := audit.NewService(a.DB)

	authHandler := authhandler.NewHandler(authStore, directoryStore, cfg)
	directoryHandler := directoryhandler.NewHandler(directoryStore, auditor)
	kpiHandler := kpihandler.NewHandler(kpiService, notifier, auditor)
	feedbackHandler := feedbackhandler.NewHandler(feedbackService, directoryStore, notifier, auditor)
	notificationsHandler := notificationshandler.NewHandler(notifier)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer(a.Metrics))
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Total", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middleware.Auth(cfg.JWTSecret, a.Metrics))
	if cfg.MetricsEnabled {
		router.Use(middleware.Metrics(a.Metrics))
	}

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	router.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.AuthRatePerMinute, cfg.AuthRateBurst, a.Metrics))
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/refresh-token", authHandler.HandleRefresh)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Post("/logout", authHandler.HandleLogout)
			r.Get("/dashboard", authHandler.HandleDashboard)
		})
	})

	router.Route("/users", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", directoryHandler.HandleListUsers)
		r.Get("/managers", directoryHandler.HandleListManagers)
		r.Get("/departments", directoryHandler.HandleDepartmentNames)
		r.Get("/department/{name}", directoryHandler.HandleUsersByDepartment)
		r.Get("/{id}", directoryHandler.HandleGetUser)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCapability(func(c auth.Capabilities) bool { return c.ManageUsers }))
			r.Post("/", directoryHandler.HandleCreateUser)
			r.Put("/{id}", directoryHandler.HandleUpdateUser)
			r.Patch("/{id}", directoryHandler.HandleUpdateUser)
			r.Delete("/{id}", directoryHandler.HandleDeleteUser)
		})
	})

	router.Route("/departments", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", directoryHandler.HandleListDepartments)
		r.Get("/{id}", directoryHandler.HandleGetDepartment)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCapability(func(c auth.Capabilities) bool { return c.ManageDepartments }))
			r.Post("/", directoryHandler.HandleCreateDepartment)
			r.Put("/{id}", directoryHandler.HandleUpdateDepartment)
			r.Delete("/{id}", directoryHandler.HandleDeleteDepartment)
		})
	})

	router.Route("/kpis", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", kpiHandler.HandleList)
		r.Post("/", kpiHandler.HandleCreate)
		r.Get("/my-kpis", kpiHandler.HandleMyKPIs)
		r.Post("/updates", kpiHandler.HandleAddUpdateByBody)
		r.Get("/analytics/summary", kpiHandler.HandleAnalyticsSummary)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", kpiHandler.HandleListCategories)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireCapability(func(c auth.Capabilities) bool { return c.ManageCategories }))
				r.Post("/", kpiHandler.HandleCreateCategory)
				r.Put("/{id}", kpiHandler.HandleUpdateCategory)
				r.Patch("/{id}", kpiHandler.HandleUpdateCategory)
				r.Delete("/{id}", kpiHandler.HandleDeleteCategory)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCapability(func(c auth.Capabilities) bool { return c.ViewTeam }))
			r.Get("/user/{userId}", kpiHandler.HandleUserKPIs)
		})

		r.Get("/{id}", kpiHandler.HandleGet)
		r.Put("/{id}", kpiHandler.HandleUpdate)
		r.Patch("/{id}", kpiHandler.HandleUpdate)
		r.Delete("/{id}", kpiHandler.HandleDelete)
		r.Get("/{id}/updates", kpiHandler.HandleListUpdates)
		r.Post("/{id}/updates", kpiHandler.HandleAddUpdate)
	})

	router.Route("/feedback", func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", feedbackHandler.HandleListRequests)
			r.Post("/", feedbackHandler.HandleCreateRequest)
			r.Get("/actionable", feedbackHandler.HandleActionableRequests)
			r.Get("/{id}", feedbackHandler.HandleGetRequest)
			r.Put("/{id}", feedbackHandler.HandleUpdateRequest)
			r.Patch("/{id}", feedbackHandler.HandleUpdateRequest)
			r.Delete("/{id}", feedbackHandler.HandleDeleteRequest)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireCapability(func(c auth.Capabilities) bool { return c.ApproveRequests }))
				r.Post("/{id}/approve", feedbackHandler.HandleApproveRequest)
				r.Post("/{id}/decline", feedbackHandler.HandleDeclineRequest)
			})
		})

		r.Route("/cycles", func(r chi.Router) {
			r.Get("/", feedbackHandler.HandleListCycles)
			r.Get("/{id}", feedbackHandler.HandleGetCycle)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireCapability(func(c auth.Capabilities) bool { return c.ManageCycles }))
				r.Post("/", feedbackHandler.HandleCreateCycle)
				r.Put("/{id}", feedbackHandler.HandleUpdateCycle)
				r.Patch("/{id}", feedbackHandler.HandleUpdateCycle)
				r.Delete("/{id}", feedbackHandler.HandleDeleteCycle)
			})
		})

		r.Route("/360", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireCapability(func(c auth.Capabilities) bool { return c.Request360 }))
				r.Post("/{userId}", feedbackHandler.HandleCreate360)
			})
			r.Get("/{userId}/summary", feedbackHandler.HandleSummary360)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCapability(func(c auth.Capabilities) bool { return c.ViewTeam }))
			r.Get("/analytics/summary", feedbackHandler.HandleAnalyticsSummary)
		})

		r.Get("/", feedbackHandler.HandleListFeedback)
		r.Post("/", feedbackHandler.HandleSubmitFeedback)
		r.Get("/{id}", feedbackHandler.HandleGetFeedback)
		r.Put("/{id}", feedbackHandler.HandleUpdateFeedback)
		r.Patch("/{id}", feedbackHandler.HandleUpdateFeedback)
		r.Post("/{id}/acknowledge", feedbackHandler.HandleAcknowledgeFeedback)
		r.Delete("/{id}", feedbackHandler.HandleDeleteFeedback)
	})

	router.Route("/notifications", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", notificationsHandler.HandleList)
		r.Post("/read-all", notificationsHandler.HandleMarkAllRead)
		r.Post("/{id}/read", notificationsHandler.HandleMarkRead)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCapability(func(c auth.Capabilities) bool { return c.ViewAudit }))
			r.Get("/audit", func(w http.ResponseWriter, r *http.Request) {
				page := shared.ParsePagination(r, 100, 500)
				events, err := auditor.List(r.Context(), page.Limit, page.Offset)
				if err != nil {
					api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list audit events", middleware.GetRequestID(r.Context()))
					return
				}
				api.Success(w, events, middleware.GetRequestID(r.Context()))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCapability(func(c auth.Capabilities) bool { return c.ViewMetrics }))
			r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
				api.Success(w, a.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
			})
		})
	})

	return router
}

// Run is the blocking entrypoint used by cmd/server.
func Run() {
	ctx := context.Background()
	cfg := config.Load()

	app, err := New(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.Close()

	log.Printf("server listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, app.Router); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
