package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"paydesk/internal/domain/adjustment"
	"paydesk/internal/domain/approval"
	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
	"paydesk/internal/domain/employee"
	"paydesk/internal/domain/notifications"
	"paydesk/internal/domain/payroll"
	"paydesk/internal/domain/reports"
	"paydesk/internal/domain/rules"
	"paydesk/internal/platform/cache"
	"paydesk/internal/platform/config"
	"paydesk/internal/platform/db"
	"paydesk/internal/platform/email"
	"paydesk/internal/platform/jobs"
	"paydesk/internal/platform/metrics"
	adjustmentshandler "paydesk/internal/transport/http/handlers/adjustments"
	approvalshandler "paydesk/internal/transport/http/handlers/approvals"
	audithandler "paydesk/internal/transport/http/handlers/audit"
	authhandler "paydesk/internal/transport/http/handlers/auth"
	employeeshandler "paydesk/internal/transport/http/handlers/employees"
	payrollhandler "paydesk/internal/transport/http/handlers/payroll"
	reportshandler "paydesk/internal/transport/http/handlers/reports"
	ruleshandler "paydesk/internal/transport/http/handlers/rules"
	"paydesk/internal/transport/http/api"
	"paydesk/internal/transport/http/middleware"
	"paydesk/migrations"
)

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Router  http.Handler
	Jobs    *jobs.Service
	Metrics *metrics.Collector
}

// Services bundles the domain services so the command-line tools can share
// the wiring used by the HTTP server.
type Services struct {
	Auth        *auth.Service
	Employees   *employee.Service
	Payroll     *payroll.Service
	Rules       *rules.Service
	Adjustments *adjustment.Service
	Approvals   *approval.Service
	Reports     *reports.Service
	Audit       *audit.Service
}

// Prepare connects to the database and, when configured, applies the
// embedded migrations and the seed data.
func Prepare(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, migrations.Files); err != nil {
			pool.Close()
			return nil, err
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return pool, nil
}

func TaxPolicy(cfg config.Config) payroll.TaxPolicy {
	if cfg.PayrollTaxMode == config.TaxModeProgressive {
		return payroll.NewProgressive()
	}
	return payroll.FlatRate{Rate: cfg.PayrollFlatTaxRate}
}

// NewServices builds every domain service on top of pool. rdb may be nil, in
// which case the dashboard is computed on every request. Without jobsSvc
// welcome mail is sent inline.
func NewServices(cfg config.Config, pool *pgxpool.Pool, rdb *redis.Client, jobsSvc *jobs.Service) Services {
	var queue notifications.Enqueuer
	if jobsSvc != nil {
		queue = jobsSvc
	}
	notifier := notifications.New(email.New(cfg), cfg.EmailFrom, queue, jobs.JobWelcomeEmail)
	return Services{
		Auth: auth.NewService(auth.NewStore(pool), cfg.JWTSecret, cfg.TokenTTL),
		Employees: employee.NewService(employee.NewStore(pool),
			employee.WithNotifier(notifier),
			employee.WithEmailDomain(cfg.EmployeeEmailDomain),
		),
		Payroll: payroll.NewService(payroll.NewStore(pool),
			payroll.WithTaxPolicy(TaxPolicy(cfg)),
			payroll.WithPensionRate(cfg.PayrollPensionRate),
		),
		Rules:       rules.NewService(rules.NewStore(pool)),
		Adjustments: adjustment.NewService(adjustment.NewStore(pool)),
		Approvals:   approval.NewService(approval.NewStore(pool)),
		Reports:     reports.NewService(reports.NewStore(pool), reports.WithCache(cache.New(rdb), cfg.DashboardCacheTTL)),
		Audit:       audit.New(pool),
	}
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	pool, err := Prepare(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("redis unavailable, dashboard cache disabled", "err", err)
		} else {
			rdb = client
		}
	}

	jobsSvc := jobs.New(pool, 256)
	collector := metrics.New()
	services := NewServices(cfg, pool, rdb, jobsSvc)

	app := &App{Config: cfg, DB: pool, Jobs: jobsSvc, Metrics: collector}
	app.Router = newRouter(cfg, pool, collector, jobsSvc, services)
	return app, nil
}

func newRouter(cfg config.Config, pool *pgxpool.Pool, collector *metrics.Collector, jobsSvc *jobs.Service, services Services) http.Handler {
	perms := auth.StaticPermissions{}
	idem := middleware.NewIdempotencyStore(pool)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(collector))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.With(middleware.RequirePermission(auth.PermAuditRead, perms)).Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, collector.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))

		authHandler := authhandler.NewHandler(services.Auth)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.With(middleware.RequireAuth).Get("/me", authHandler.HandleMe)

		employeesHandler := employeeshandler.NewHandler(services.Employees, perms, jobsSvc)
		employeesHandler.Metrics = collector
		employeesHandler.Dashboard = services.Reports
		employeesHandler.RegisterRoutes(r)

		payrollHandler := payrollhandler.NewHandler(services.Payroll, perms, idem)
		payrollHandler.Metrics = collector
		payrollHandler.Dashboard = services.Reports
		payrollHandler.AnomalyThreshold = cfg.AnomalyThreshold
		payrollHandler.RegisterRoutes(r)

		rulesHandler := ruleshandler.NewHandler(services.Rules, perms, idem)
		rulesHandler.Metrics = collector
		rulesHandler.Dashboard = services.Reports
		rulesHandler.RegisterRoutes(r)

		adjustmentsHandler := adjustmentshandler.NewHandler(services.Adjustments, perms)
		adjustmentsHandler.RegisterRoutes(r)

		approvalsHandler := approvalshandler.NewHandler(services.Approvals, perms)
		approvalsHandler.Metrics = collector
		approvalsHandler.Dashboard = services.Reports
		approvalsHandler.RegisterRoutes(r)

		reportsHandler := reportshandler.NewHandler(services.Reports, perms)
		reportsHandler.RegisterRoutes(r)

		auditHandler := audithandler.NewHandler(services.Audit, perms)
		auditHandler.RegisterRoutes(r)
	})

	return router
}

// Run serves HTTP and the job worker until ctx is cancelled, then drains
// in-flight requests.
func (a *App) Run(ctx context.Context) error {
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	a.Jobs.Start(workerCtx)

	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadTimeout:       a.Config.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      a.Config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("paydesk server listening", "addr", a.Config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	stopWorker()
	a.Jobs.Wait()
	return err
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
