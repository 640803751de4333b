// Package server assembles the chi router shared by the standalone server and
// the serverless entry point.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"card-tracker-backend/pkg/catalog"
	"card-tracker-backend/pkg/config"
	"card-tracker-backend/pkg/database"
	"card-tracker-backend/pkg/handlers"
	"card-tracker-backend/pkg/logger"
	customMiddleware "card-tracker-backend/pkg/middleware"
	"card-tracker-backend/pkg/utils"
)

// maxRequestBody 请求体上限
const maxRequestBody = 1 << 20

// Options 路由依赖
type Options struct {
	Config   *config.Config
	Database database.DatabaseInterface
	Logger   *zap.Logger
	// Pool 可选；开发环境下暴露连接池状态
	Pool *database.Pool
	// Verifier 可选；默认使用 SUPABASE_JWT_SECRET 校验 HS256 token
	Verifier customMiddleware.TokenVerifier
}

// NewRouter 创建完整的 HTTP 路由
func NewRouter(opts Options) (http.Handler, error) {
	cfg := opts.Config
	log := logger.OrNop(opts.Logger)

	reader, err := catalog.NewReader(opts.Database, catalog.Options{
		CacheSize: cfg.CatalogCacheSize,
		CacheTTL:  cfg.CatalogCacheTTL,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	verifier := opts.Verifier
	if verifier == nil {
		verifier = utils.NewJWTService(cfg.JWTSecret, "")
	}

	router := chi.NewRouter()
	setupMiddleware(router, cfg, log)
	setupRoutes(router, opts, reader, verifier, log)
	return router, nil
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config, log *zap.Logger) {
	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// Normalize path before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.RequestLogger(log))
	router.Use(customMiddleware.Recovery(cfg, log))

	// CORS中间件
	router.Use(customMiddleware.CORS(cfg))

	// 超时中间件（Vercel函数有时间限制）
	router.Use(middleware.Timeout(25 * time.Second)) // 留5秒缓冲

	router.Use(middleware.Compress(5))
	router.Use(customMiddleware.MaxBodySize(maxRequestBody))
	router.Use(customMiddleware.ContentTypeJSON)

	// 开发环境额外中间件
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, opts Options, reader *catalog.Reader, verifier customMiddleware.TokenVerifier, log *zap.Logger) {
	cfg, db := opts.Config, opts.Database

	healthHandler := handlers.NewHealthHandler(cfg, db)
	catalogHandler := handlers.NewCatalogHandler(cfg, db, reader, log)
	collectionsHandler := handlers.NewCollectionsHandler(cfg, db, reader, log)
	gameHandler := handlers.NewGameHandler(cfg, db, log)

	// 健康检查端点
	router.Get("/", healthHandler.HealthCheck)

	// 数据库连接池状态端点（调试用）
	if cfg.IsDevelopment() && opts.Pool != nil {
		router.Get("/debug/db-pool", func(w http.ResponseWriter, r *http.Request) {
			utils.WriteSuccessResponse(w, opts.Pool.Stats())
		})
	}

	router.Route("/api", func(r chi.Router) {
		// 目录：公开，登录时附带收藏标记
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.OptionalAuthMiddleware(verifier))

			r.Get("/sets", catalogHandler.ListSets)
			r.Get("/sets/{setID}", catalogHandler.GetSet)
			r.Get("/cards", catalogHandler.ListCards)
			r.Get("/cards/search", catalogHandler.Search)
			r.Get("/cards/{cardID}", catalogHandler.GetCard)
		})

		// 需要认证的路由
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.AuthMiddleware(verifier, log))

			r.Get("/session", healthHandler.Session)

			r.Route("/collection", func(r chi.Router) {
				r.Get("/", collectionsHandler.GetCollection)
				r.Post("/", collectionsHandler.AddCard)
				r.Get("/count", collectionsHandler.Count)
			})

			r.Route("/game", func(r chi.Router) {
				r.Get("/collection", gameHandler.GetCollection)
				r.Get("/collection/count", gameHandler.Count)
				r.Post("/booster", gameHandler.OpenBooster)
				r.Post("/booster/claim", gameHandler.ClaimCards)
			})
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}
