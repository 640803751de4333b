package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"card-tracker-backend/pkg/booster"
	"card-tracker-backend/pkg/collection"
	"card-tracker-backend/pkg/config"
	"card-tracker-backend/pkg/database"
	"card-tracker-backend/pkg/logger"
	"card-tracker-backend/pkg/middleware"
	"card-tracker-backend/pkg/models"
	"card-tracker-backend/pkg/utils"
)

// maxClaimCards 单次领取的最大卡牌数
const maxClaimCards = 100

// OpenBoosterRequest 开包请求；set_id 为空时从全部卡牌中选取
type OpenBoosterRequest struct {
	SetID string `json:"set_id"`
}

// ClaimCardsRequest 领取请求
type ClaimCardsRequest struct {
	CardIDs []string `json:"card_ids"`
}

// GameHandler 卡包小游戏
type GameHandler struct {
	config *config.Config
	db     database.DatabaseInterface
	log    *zap.Logger
}

// NewGameHandler 创建游戏处理器
func NewGameHandler(cfg *config.Config, db database.DatabaseInterface, log *zap.Logger) *GameHandler {
	return &GameHandler{config: cfg, db: db, log: logger.OrNop(log)}
}

func (h *GameHandler) game(r *http.Request) (*booster.Game, error) {
	db := database.ForUser(h.db, middleware.GetAccessToken(r.Context()))
	tracker, err := collection.NewTracker(db, database.GameCollection, h.log)
	if err != nil {
		return nil, err
	}
	return booster.NewGame(db, tracker, h.config.BoosterPackSize, h.log)
}

// GetCollection GET /api/game/collection
func (h *GameHandler) GetCollection(w http.ResponseWriter, r *http.Request) {
	g, err := h.game(r)
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	ids, err := g.Collection(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"card_ids": ids,
		"count":    len(ids),
	})
}

// Count GET /api/game/collection/count
func (h *GameHandler) Count(w http.ResponseWriter, r *http.Request) {
	g, err := h.game(r)
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	userID := middleware.UserID(r.Context())
	n, err := g.Count(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	utils.WriteSuccessResponse(w, models.CollectionCount{UserID: userID, Count: n})
}

// OpenBooster POST /api/game/booster
func (h *GameHandler) OpenBooster(w http.ResponseWriter, r *http.Request) {
	// 未登录时在任何后端读取之前返回登录提示
	userID := middleware.UserID(r.Context())
	if userID == "" {
		writeError(w, r, h.log, "", booster.ErrNotAuthenticated)
		return
	}

	var req OpenBoosterRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid JSON format")
		return
	}
	req.SetID = strings.TrimSpace(req.SetID)

	g, err := h.game(r)
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	pack, err := g.Open(r.Context(), userID, req.SetID)
	if err != nil {
		writeError(w, r, h.log, "Card set "+req.SetID+" not found", err)
		return
	}
	utils.WriteSuccessResponse(w, pack)
}

// ClaimCards POST /api/game/booster/claim
func (h *GameHandler) ClaimCards(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		writeError(w, r, h.log, "", booster.ErrNotAuthenticated)
		return
	}

	var req ClaimCardsRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid JSON format")
		return
	}
	if len(req.CardIDs) == 0 {
		utils.WriteValidationErrorResponse(w, "card_ids must not be empty", "card_ids")
		return
	}
	if len(req.CardIDs) > maxClaimCards {
		utils.WriteValidationErrorResponse(w, "Too many cards in one claim", "card_ids")
		return
	}

	g, err := h.game(r)
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	summary, err := g.Claim(r.Context(), userID, req.CardIDs)
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	utils.WriteSuccessResponse(w, summary)
}
