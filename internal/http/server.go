package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"omnifin/internal/cache"
	"omnifin/internal/core"
	"omnifin/internal/ledger"
	"omnifin/internal/log"
	"omnifin/internal/middleware/ratelimit"
	"omnifin/internal/middleware/security"
	"omnifin/internal/middleware/trace"
	appweb "omnifin/web"
)

// Ledger is the application surface the HTTP layer drives.
type Ledger interface {
	CreateCompany(ctx context.Context, cmd core.CreateCompanyCommand) (core.Company, error)
	GetCompany(ctx context.Context, id uuid.UUID) (core.Company, error)
	ListCompanies(ctx context.Context) ([]core.Company, error)
	CreateEntity(ctx context.Context, cmd core.CreateEntityCommand) (core.Entity, error)
	ListEntities(ctx context.Context, companyID uuid.UUID) ([]core.Entity, error)
	CreateTransaction(ctx context.Context, cmd core.CreateTransactionCommand) (core.Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, cmd core.UpdateTransactionCommand) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
	ListTransactions(ctx context.Context, companyID uuid.UUID, limit int) ([]core.Transaction, error)
	ListSnapshots(ctx context.Context, companyID uuid.UUID, limit int) ([]core.MetricsSnapshot, error)
	Dashboard(ctx context.Context, companyID *uuid.UUID) (core.Dashboard, error)
	Ready(ctx context.Context) error
}

const (
	companyCacheSize = 100
	companyCacheTTL  = 5 * time.Minute
	cacheCleanup     = 10 * time.Minute
	companyListKey   = "all"
)

// Options tunes the server; zero values select defaults.
type Options struct {
	RateLimitPerMinute int
	Logger             *log.Logger
}

type Server struct {
	http.Server
	ledger     Ledger
	templates  *template.Template
	logger     *log.Logger
	structured *log.StructuredLogger

	// Company records change only on create, so lookups are cached. Metrics
	// are always recomputed.
	companies    *cache.LRUCache[core.Company]
	companyList  *cache.LRUCache[[]core.Company]
	cacheManager *cache.Manager

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(addr string, l Ledger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ledger:       l,
		logger:       logger,
		structured:   log.NewStructuredLogger(logger),
		companies:    cache.NewLRUCache[core.Company](companyCacheSize, companyCacheTTL),
		companyList:  cache.NewLRUCache[[]core.Company](1, companyCacheTTL),
		cacheManager: cache.NewManager(),
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:     security.NewDetector(),
		started:      time.Now(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	s.cacheManager.Register(s.companies)
	s.cacheManager.Register(s.companyList)
	s.cacheManager.StartCleanup(cacheCleanup)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /{$}", security.NoStore(http.HandlerFunc(s.handleIndex)))

	s.api(mux, "GET /api/dashboard", s.handleDashboardJSON)
	s.api(mux, "GET /api/companies", s.handleListCompanies)
	s.api(mux, "POST /api/companies", s.handleCreateCompany)
	s.api(mux, "GET /api/companies/{id}", s.handleGetCompany)
	s.api(mux, "GET /api/companies/{id}/entities", s.handleListEntities)
	s.api(mux, "GET /api/companies/{id}/transactions", s.handleListTransactions)
	s.api(mux, "GET /api/companies/{id}/snapshots", s.handleListSnapshots)
	s.api(mux, "POST /api/entities", s.handleCreateEntity)
	s.api(mux, "POST /api/transactions", s.handleCreateTransaction)
	s.api(mux, "GET /api/transactions/{id}", s.handleGetTransaction)
	s.api(mux, "PUT /api/transactions/{id}", s.handleUpdateTransaction)
	s.api(mux, "DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.RequestIDMiddleware(trace.FromRequest)(handler)
	handler = log.Middleware(logger)(handler)
	handler = s.tracer.Middleware(handler)
	s.Handler = handler

	return s
}

func (s *Server) api(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, security.NoStore(h))
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log.FromContext(ctx).WithComponent(log.ComponentRateLimit).WarnContext(ctx, "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
}

// Shutdown stops background loops and then the HTTP server. Only the first
// call has an effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) cachedCompany(ctx context.Context, id uuid.UUID) (core.Company, error) {
	key := id.String()
	if c, ok := s.companies.Get(key); ok {
		log.FromContext(ctx).WithComponent(log.ComponentCache).DebugContext(ctx, "Company cache hit", log.FieldCompanyID, key)
		return c, nil
	}
	c, err := s.ledger.GetCompany(ctx, id)
	if err != nil {
		return core.Company{}, err
	}
	s.companies.Set(key, c)
	return c, nil
}

func (s *Server) cachedCompanies(ctx context.Context) ([]core.Company, error) {
	if list, ok := s.companyList.Get(companyListKey); ok {
		return append([]core.Company(nil), list...), nil
	}
	list, err := s.ledger.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	s.companyList.Set(companyListKey, list)
	return append([]core.Company(nil), list...), nil
}

func (s *Server) invalidateCompanies(c core.Company) {
	s.companyList.Purge()
	s.companies.Set(c.ID.String(), c)
}

var templateFuncs = template.FuncMap{
	"money": func(v decimal.Decimal, currency string) string {
		return ledger.FormatAmount(v, currency)
	},
	"signed": func(t core.Transaction, currency string) string {
		return ledger.FormatAmount(t.SignedAmount(), currency)
	},
	"negative": func(v decimal.Decimal) bool { return v.IsNegative() },
	"upper":    strings.ToUpper,
}
