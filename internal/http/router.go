// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/lshimizu/invoice-chat-backend/internal/config"
	"github.com/lshimizu/invoice-chat-backend/internal/http/handlers"
	"github.com/lshimizu/invoice-chat-backend/internal/http/middleware"
	"github.com/lshimizu/invoice-chat-backend/internal/oracle"
	"github.com/lshimizu/invoice-chat-backend/internal/repo"
	"github.com/lshimizu/invoice-chat-backend/internal/services"
	"github.com/lshimizu/invoice-chat-backend/internal/storage"
)

// Dependencies carries the externally constructed collaborators the router
// cannot build from config alone. Oracle, Hours, and Renderer are required
// (the production OpenRouter client implements both oracle interfaces);
// Uploader may be nil when object storage is not configured.
type Dependencies struct {
	Oracle   oracle.Extractor
	Hours    oracle.HoursExtractor
	Renderer services.Renderer
	Uploader storage.Uploader
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (upload cap + JSON headroom)
//  6. Response compression
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps Dependencies, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction; Authorization and X-Api-Key are
	// masked by default, so oracle and storage credentials never reach logs.
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit: the image upload cap plus headroom for the
	// multipart framing and ordinary JSON bodies.
	r.Use(limitBody(cfg.MaxUploadBytes + 1<<20))

	// 6) Compress responses (PDF downloads are already compressed streams,
	// gzip leaves them close to untouched)
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, sessionID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, sessionID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per client IP (caps oracle spend)
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (opt-in)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/collaborators
	clientSvc := services.NewClientService(db)
	invoiceSvc := services.NewInvoiceService(db, deps.Renderer)
	chatSvc := services.NewChatService(db, deps.Oracle, invoiceSvc, cfg.EmailTemplates, cfg.Company.Name, cfg.IdempotencyTTL)
	quickSvc := services.NewQuickInvoiceService(db, deps.Hours, invoiceSvc, cfg.EmailTemplates, cfg.Company.Name)
	h := handlers.New(clientSvc, invoiceSvc, chatSvc, quickSvc, deps.Uploader, cfg.MaxUploadBytes)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Clients
		api.POST("/clients", h.CreateClient)
		api.GET("/clients", h.ListClients)
		api.GET("/clients/:id", h.GetClient)
		api.PUT("/clients/:id", h.UpdateClient)
		api.DELETE("/clients/:id", h.DeleteClient)

		// Invoices
		api.GET("/invoices", h.ListInvoices)
		api.POST("/invoices", h.CreateInvoice)
		api.GET("/invoices/:id", h.GetInvoice)
		api.PUT("/invoices/:id", h.UpdateInvoice)
		api.DELETE("/invoices/:id", h.DeleteInvoice)
		api.POST("/invoices/:id/archive", h.ArchiveInvoice)
		api.POST("/invoices/:id/restore", h.RestoreInvoice)
		api.GET("/invoices/:id/pdf", h.InvoicePDF)
		api.POST("/invoices/:id/entries", h.AddHoursEntry)
		api.DELETE("/invoices/:id/entries/:entryID", h.RemoveHoursEntry)
		api.POST("/invoices/:id/items", h.AddLineItem)
		api.DELETE("/invoices/:id/items/:itemID", h.RemoveLineItem)

		// Chat
		api.POST("/chat", h.PostChat)
		api.POST("/chat/confirm", h.ConfirmInvoice)
		api.POST("/chat/create-client", h.CreateClientFromChat)
		api.GET("/chat/sessions", h.ListSessions)
		api.POST("/chat/sessions", h.CreateSession)
		api.GET("/chat/sessions/:id", h.GetSession)
		api.DELETE("/chat/sessions/:id", h.DeleteSession)
		api.POST("/chat/sessions/:id/archive", h.ArchiveSession)
		api.POST("/chat/sessions/:id/restore", h.RestoreSession)
		api.POST("/chat/sessions/:id/event", h.PostSessionEvent)
		api.POST("/chat/sessions/:id/preview", h.PromotePreview)

		// Quick invoice (one-shot hourly flow, no preview cycle)
		api.POST("/quick-invoice/extract-hours-image", h.ExtractHoursImage)
		api.POST("/quick-invoice/parse-hours-text", h.ParseHoursText)
		api.POST("/quick-invoice/generate-email", h.GenerateQuickEmail)
		api.POST("/quick-invoice/create", h.QuickCreateInvoice)

		// Images
		api.POST("/images", h.UploadImage)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
