package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/fco71/myworkoutapp/internal/auth"
	"github.com/fco71/myworkoutapp/internal/config"
	"github.com/fco71/myworkoutapp/internal/db"
	"github.com/fco71/myworkoutapp/internal/favorites"
	"github.com/fco71/myworkoutapp/internal/middleware"
	"github.com/fco71/myworkoutapp/internal/plans"
	"github.com/fco71/myworkoutapp/internal/sessions"
	"github.com/fco71/myworkoutapp/internal/telemetry/metrics"
	"github.com/fco71/myworkoutapp/internal/telemetry/tracing"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config *config.Config
	dbPool *pgxpool.Pool

	redisClient  *redis.Client
	loginChecker *auth.LoginChecker
	authService  *auth.Service
	admin        *auth.Admin

	favoritesCache        *favorites.Cache
	favoritesSynchronizer *favorites.Synchronizer
	favoritesSubscription *favorites.Subscription

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	AdminUsername           string
	AdminPasswordHash       string
	RedisPassword           string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDBName,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": params.Config.PostgresDBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("workout", "backend", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	authService := auth.NewService(auth.DefaultTTL, rdb)
	go func() {
		for range time.Tick(time.Hour * 8) {
			authService.ScanAndClean(ctx)
		}
	}()

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(
		params.HoneycombTracingEnabled, "workout-backend", rdb,
	)
	if err != nil {
		return nil, err
	}

	favoritesCache := favorites.NewCache()
	favoritesSynchronizer := favorites.NewSynchronizer(
		favorites.NewRepo(dbPool),
		favoritesCache,
		favorites.NewRedisPublisher(rdb),
		metricsManager,
	)
	if err := favoritesSynchronizer.Reload(ctx, params.Config.AccountID); err != nil {
		log.Warnf("initial favorites load: %s", err)
	}

	s := &Server{
		config:      params.Config,
		dbPool:      dbPool,
		versionInfo: params.VersionInfo,

		redisClient:  rdb,
		authService:  authService,
		loginChecker: auth.NewLoginChecker(auth.DefaultTTL, rdb),
		admin: &auth.Admin{
			Username:     params.AdminUsername,
			PasswordHash: params.AdminPasswordHash,
		},

		favoritesCache:        favoritesCache,
		favoritesSynchronizer: favoritesSynchronizer,
		favoritesSubscription: favorites.NewSubscription(
			rdb, favoritesSynchronizer, params.Config.AccountID,
		),

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}

	return s, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("workout-router"))

	accountID := s.config.AccountID

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	authHandler := auth.NewHandler(s.admin, s.authService, s.versionInfo)
	r.HandleFunc("/version", authHandler.HandleGetVersionInfo).Methods("GET", "OPTIONS")

	loginSubrouter := r.PathPrefix("/a").Subrouter()
	loginSubrouter.
		HandleFunc("/login", authHandler.HandleLogin).
		Methods("POST", "OPTIONS").Name("login")
	loginSubrouter.
		HandleFunc("/logout", authHandler.HandleLogout).
		Methods("GET", "OPTIONS").Name("logout")
	// rate limit the /login and /logout endpoints to prevent abuse
	loginSubrouter.Use(middleware.RateLimit(
		reqRateLimiter, "login", s.config.LoginRateLimitAllowedPerMin, s.metricsManager,
	))
	loginSubrouter.Use(middleware.Cors())

	plansRepo := plans.NewRepo(s.dbPool)
	sessionsRepo := sessions.NewRepo(s.dbPool)
	catalogRepo := plans.NewCatalogRepo(s.dbPool)
	reconciler := plans.NewReconciler(plansRepo, sessionsRepo, s.metricsManager)
	loader := plans.NewLoader(plansRepo)

	plansHandler := plans.NewHandler(
		reconciler, loader, plansRepo, catalogRepo,
		accountID, s.config.HistoryLookbackWeeks,
	)
	r.HandleFunc("/weekly/current", plansHandler.HandleGetCurrent).Methods("GET", "OPTIONS").Name("current-week")
	r.HandleFunc("/weekly/history/{lookback}", plansHandler.HandleHistory).Methods("GET", "OPTIONS").Name("weekly-history")
	r.HandleFunc("/weekly/toggle", plansHandler.HandleToggle).Methods("POST", "OPTIONS").Name("toggle-type")
	r.HandleFunc("/weekly/type", plansHandler.HandleAddType).Methods("POST", "OPTIONS").Name("add-type")
	r.HandleFunc("/weekly/type/{name}", plansHandler.HandleRemoveType).Methods("DELETE", "OPTIONS").Name("remove-type")
	r.HandleFunc("/weekly/benchmarks", plansHandler.HandleSetBenchmarks).Methods("PUT", "OPTIONS").Name("set-benchmarks")
	r.HandleFunc("/weekly/benchmarks/progress", plansHandler.HandleProgress).Methods("GET", "OPTIONS").Name("benchmarks-progress")
	r.HandleFunc("/settings/types", plansHandler.HandleGetCatalog).Methods("GET", "OPTIONS").Name("get-types-setup")
	r.HandleFunc("/settings/types", plansHandler.HandleSaveCatalog).Methods("PUT", "OPTIONS").Name("save-types-setup")

	sessionsHandler := sessions.NewHandler(sessionsRepo, reconciler, accountID)
	r.HandleFunc("/sessions/complete", plansHandler.HandleCompleteWorkout).Methods("POST", "OPTIONS").Name("complete-workout")
	r.HandleFunc("/sessions/list/page/{page}/size/{size}", sessionsHandler.HandleList).Methods("GET", "OPTIONS").Name("list-sessions")
	r.HandleFunc("/sessions/{id}", sessionsHandler.HandleGet).Methods("GET", "OPTIONS").Name("get-session")
	r.HandleFunc("/sessions/{id}", sessionsHandler.HandleDelete).Methods("DELETE", "OPTIONS").Name("delete-session")

	favoritesHandler := favorites.NewHandler(s.favoritesSynchronizer, s.favoritesCache, accountID)
	r.HandleFunc("/favorites", favoritesHandler.HandleList).Methods("GET", "OPTIONS").Name("list-favorites")
	r.HandleFunc("/favorites/toggle", favoritesHandler.HandleToggle).Methods("POST", "OPTIONS").Name("toggle-favorite")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.loginChecker)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(ctx context.Context, host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("workout service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	// follow favorite updates coming from other devices
	go s.favoritesSubscription.Run(ctx)

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
