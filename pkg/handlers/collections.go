package handlers

import (
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"card-tracker-backend/pkg/catalog"
	"card-tracker-backend/pkg/collection"
	"card-tracker-backend/pkg/config"
	"card-tracker-backend/pkg/database"
	"card-tracker-backend/pkg/logger"
	"card-tracker-backend/pkg/middleware"
	"card-tracker-backend/pkg/models"
	"card-tracker-backend/pkg/utils"
)

// AddCardRequest 添加收藏请求
type AddCardRequest struct {
	CardID string `json:"card_id"`
}

// CollectionsHandler 真实收藏
type CollectionsHandler struct {
	config  *config.Config
	db      database.DatabaseInterface
	catalog *catalog.Reader
	log     *zap.Logger
}

// NewCollectionsHandler 创建收藏处理器
func NewCollectionsHandler(cfg *config.Config, db database.DatabaseInterface, reader *catalog.Reader, log *zap.Logger) *CollectionsHandler {
	return &CollectionsHandler{config: cfg, db: db, catalog: reader, log: logger.OrNop(log)}
}

// tracker 以当前用户身份访问后端
func (h *CollectionsHandler) tracker(r *http.Request) (*collection.Tracker, error) {
	db := database.ForUser(h.db, middleware.GetAccessToken(r.Context()))
	return collection.NewTracker(db, database.UserCollection, h.log)
}

// GetCollection GET /api/collection
// 带 set_id 时返回该卡组卡牌及 owned 标记，否则返回已收藏的卡牌 id
func (h *CollectionsHandler) GetCollection(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	tracker, err := h.tracker(r)
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}

	if setID := strings.TrimSpace(r.URL.Query().Get("set_id")); setID != "" {
		detail, err := h.catalog.SetDetail(r.Context(), setID)
		if err != nil {
			writeError(w, r, h.log, "Card set "+setID+" not found", err)
			return
		}
		cards := tracker.MergeStatus(r.Context(), detail.Cards, user.ID)
		utils.WriteSuccessResponse(w, map[string]interface{}{
			"set":   detail.Set,
			"cards": cards,
			"owned": countOwned(cards),
			"count": len(cards),
		})
		return
	}

	owned, err := tracker.OwnedCardIDs(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	ids := make([]string, 0, len(owned))
	for id := range owned {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"card_ids": ids,
		"count":    len(ids),
	})
}

// AddCard POST /api/collection
func (h *CollectionsHandler) AddCard(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}

	var req AddCardRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid JSON format")
		return
	}
	req.CardID = strings.TrimSpace(req.CardID)
	if req.CardID == "" {
		utils.WriteValidationErrorResponse(w, "card_id is required", "card_id")
		return
	}

	tracker, err := h.tracker(r)
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	if err := tracker.Add(r.Context(), user.ID, req.CardID); err != nil {
		writeError(w, r, h.log, "Card "+req.CardID+" not found", err)
		return
	}

	h.log.Info("✅ card added to collection", zap.String("user_id", user.ID), zap.String("card_id", req.CardID))
	utils.WriteCreatedResponse(w, map[string]interface{}{
		"card_id": req.CardID,
		"owned":   true,
	})
}

// Count GET /api/collection/count
func (h *CollectionsHandler) Count(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	tracker, err := h.tracker(r)
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	n, err := tracker.Count(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	utils.WriteSuccessResponse(w, models.CollectionCount{UserID: user.ID, Count: n})
}

func countOwned(cards []models.CardWithCollectionStatus) int {
	n := 0
	for _, c := range cards {
		if c.Owned {
			n++
		}
	}
	return n
}
