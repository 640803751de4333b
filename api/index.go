package handler

import (
	"net/http"
	"sync"

	"go.uber.org/zap"

	"card-tracker-backend/pkg/config"
	"card-tracker-backend/pkg/database"
	"card-tracker-backend/pkg/logger"
	"card-tracker-backend/pkg/server"
	"card-tracker-backend/pkg/utils"
)

var (
	routerOnce sync.Once
	router     http.Handler
	routerErr  error
)

// Handler 是Vercel函数的入口点
// 所有API端点集中在一个Chi路由器中，冷启动时构建一次
func Handler(w http.ResponseWriter, r *http.Request) {
	// 加载配置
	cfg := config.GetCached()

	// 验证配置
	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}

	routerOnce.Do(func() {
		router, routerErr = buildRouter(cfg)
	})
	if routerErr != nil {
		utils.WriteServiceUnavailableResponse(w, "Service is starting up, please retry")
		return
	}

	router.ServeHTTP(w, r)
}

func buildRouter(cfg *config.Config) (http.Handler, error) {
	log, err := logger.Init(cfg)
	if err != nil {
		return nil, err
	}

	// 连接由全局连接池管理，每次调用时按健康状况复用或重建
	db := database.Pooled(database.DefaultPool(), database.DatabaseConfig{
		UseLocalDB:   cfg.UseLocalDB,
		LocalDataDir: cfg.LocalDataDir,
		PostgresDSN:  cfg.PostgresDSN,
		SupabaseURL:  cfg.SupabaseURL,
		SupabaseKey:  cfg.SupabaseAPIKey(),
		Debug:        cfg.Debug,
		Logger:       log,
	})

	h, err := server.NewRouter(server.Options{Config: cfg, Database: db, Logger: log, Pool: database.DefaultPool()})
	if err != nil {
		log.Error("❌ failed to build router", zap.Error(err))
		return nil, err
	}
	return h, nil
}
