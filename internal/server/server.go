package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"adcopysurge/internal/account"
	"adcopysurge/internal/analysis"
	"adcopysurge/internal/auth"
	"adcopysurge/internal/config"
	"adcopysurge/internal/email"
	"adcopysurge/internal/ledger"
	"adcopysurge/internal/logger"
)

type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	db      *sqlx.DB
	config  *config.Config
	email   *email.Service
	cache   *redis.Client
}

func New(db *sqlx.DB, cfg *config.Config, emailService *email.Service) (*Server, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(corsMiddleware())
	router.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))

	costs, err := ledger.NewCostTable(map[ledger.Kind]int64{
		ledger.KindBasicAnalysis: cfg.CostBasicAnalysis,
		ledger.KindFullAnalysis:  cfg.CostFullAnalysis,
		ledger.KindAdGeneration:  cfg.CostAdGeneration,
	})
	if err != nil {
		return nil, err
	}

	cacheClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	accountRepo := account.NewRepository(db)

	ledgerStore := ledger.NewStore(db)
	ledgerCache := ledger.NewRedisCache(cacheClient, cfg.BalanceCacheTTL)
	ledgerService := ledger.NewService(ledgerStore, costs, ledgerCache,
		account.NewLedgerDirectory(accountRepo), emailService)
	ledgerHandler := ledger.NewHandler(ledgerService)

	accountService := account.NewService(accountRepo, ledgerService, cfg.JWTSecret)
	accountHandler := account.NewHandler(accountService)

	var analyzer analysis.Analyzer
	if cfg.AnalyzerAPIKey != "" {
		analyzer = analysis.NewProviderClient(cfg.AnalyzerBaseURL, cfg.AnalyzerAPIKey, cfg.AnalyzerModel)
	} else {
		logger.Warn("no analyzer API key configured, falling back to heuristic scoring")
		analyzer = analysis.NewHeuristicAnalyzer()
	}

	analysisRepo := analysis.NewRepository(db)
	analysisService := analysis.NewService(analysisRepo, ledgerService, analyzer, emailService, cfg.LowCreditThreshold)
	analysisHandler := analysis.NewHandler(analysisService)

	public := router.Group("/auth")
	{
		public.POST("/register", accountHandler.Register)
		public.POST("/login", accountHandler.Login)
		public.POST("/refresh", accountHandler.RefreshToken)
	}

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", accountHandler.GetMe)

		protected.GET("/credits/balance", ledgerHandler.GetBalance)
		protected.GET("/credits/check", ledgerHandler.CheckSufficient)
		protected.GET("/credits/transactions", ledgerHandler.ListTransactions)

		protected.POST("/analyses", analysisHandler.Run)
		protected.GET("/analyses", analysisHandler.List)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole("admin"))
	{
		admin.POST("/accounts/:accountID/credits/reset", ledgerHandler.ManualReset)
		admin.POST("/accounts/:accountID/credits/bonus", ledgerHandler.GrantBonus)
		admin.GET("/accounts/:accountID/credits/reconcile", ledgerHandler.Reconcile)
	}

	// Driven by an external scheduler. The /internal prefix is expected to
	// be firewalled off at the ingress, not exposed publicly.
	internal := router.Group("/internal")
	{
		internal.POST("/cron/monthly-reset", ledgerHandler.CronMonthlyReset)
	}

	router.GET("/health", Health(db))
	router.GET("/metrics", Metrics())
	SetupSwagger(router)

	if cfg.Environment != "production" {
		router.GET("/test-email", TestEmail(emailService))
	}

	return &Server{
		router: router,
		db:     db,
		config: cfg,
		email:  emailService,
		cache:  cacheClient,
	}, nil
}

func (s *Server) Start(port string) error {
	s.httpSrv = &http.Server{
		Addr:              ":" + port,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.cache != nil {
		defer s.cache.Close()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
