package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"card-tracker-backend/pkg/booster"
	"card-tracker-backend/pkg/collection"
	"card-tracker-backend/pkg/database"
	"card-tracker-backend/pkg/middleware"
	"card-tracker-backend/pkg/utils"
)

// writeError 把领域错误映射为 HTTP 响应
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, notFoundMsg string, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		utils.WriteNotFoundResponse(w, notFoundMsg)
	case errors.Is(err, booster.ErrNotAuthenticated),
		errors.Is(err, collection.ErrNoUser),
		errors.Is(err, middleware.ErrNotAuthenticated):
		utils.WriteAuthRequiredResponse(w, "Sign in to continue")
	case errors.Is(err, collection.ErrAddFailed):
		utils.WriteErrorResponseWithCode(w, http.StatusBadGateway, utils.CodeAddFailed,
			"Could not add the card to your collection, please try again", "")
	case errors.Is(err, context.Canceled):
		// 客户端已断开
		log.Debug("request cancelled", zap.String("path", r.URL.Path))
	default:
		log.Error("❌ request failed", zap.String("path", r.URL.Path), zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Something went wrong while loading data")
	}
}
