package handlers

import (
	"context"
	"net/http"
	"time"

	"card-tracker-backend/pkg/config"
	"card-tracker-backend/pkg/database"
	"card-tracker-backend/pkg/middleware"
	"card-tracker-backend/pkg/utils"
)

// HealthHandler 健康检查与会话信息
type HealthHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(cfg *config.Config, db database.DatabaseInterface) *HealthHandler {
	return &HealthHandler{config: cfg, db: db}
}

// HealthCheck GET /
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// 测试数据库连接
	dbStatus := "healthy"
	if err := h.db.HealthCheck(ctx); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"service":     "card-tracker-backend",
		"version":     "1.0.0",
		"environment": h.config.Environment,
		"database":    h.databaseType(),
		"db_status":   dbStatus,
		"timestamp":   time.Now().Unix(),
		"status":      "healthy",
	})
}

// Session GET /api/session 返回当前登录用户
func (h *HealthHandler) Session(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteAuthRequiredResponse(w, "Sign in to continue")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"logged_in": true,
		"user_id":   user.ID,
		"email":     user.Email,
		"username":  user.DisplayName(),
	})
}

// databaseType 获取数据库类型
func (h *HealthHandler) databaseType() string {
	switch {
	case h.config.UseLocalDB:
		return "local"
	case h.config.PostgresDSN != "":
		return "postgresql"
	case h.config.SupabaseURL != "":
		return "supabase"
	}
	return "unknown"
}
