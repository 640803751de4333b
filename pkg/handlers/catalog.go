package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
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

const maxPerPage = 250

// CatalogHandler 卡组与卡牌浏览
type CatalogHandler struct {
	config  *config.Config
	db      database.DatabaseInterface
	catalog *catalog.Reader
	log     *zap.Logger
}

// NewCatalogHandler 创建目录处理器
func NewCatalogHandler(cfg *config.Config, db database.DatabaseInterface, reader *catalog.Reader, log *zap.Logger) *CatalogHandler {
	return &CatalogHandler{config: cfg, db: db, catalog: reader, log: logger.OrNop(log)}
}

// ListSets GET /api/sets
func (h *CatalogHandler) ListSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.catalog.ListSets(r.Context())
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"sets":  sets,
		"count": len(sets),
	})
}

// GetSet GET /api/sets/{setID}
// 已登录时每张卡牌附带 owned 标记（真实收藏）。
func (h *CatalogHandler) GetSet(w http.ResponseWriter, r *http.Request) {
	setID := chi.URLParam(r, "setID")
	detail, err := h.catalog.SetDetail(r.Context(), setID)
	if err != nil {
		writeError(w, r, h.log, "Card set "+setID+" not found", err)
		return
	}

	cards := h.mergeOwned(r, detail.Cards)
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"set":   detail.Set,
		"cards": cards,
		"count": len(cards),
	})
}

// GetCard GET /api/cards/{cardID}
func (h *CatalogHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")
	card, err := h.catalog.GetCard(r.Context(), cardID)
	if err != nil {
		writeError(w, r, h.log, "Card "+cardID+" not found", err)
		return
	}

	resp := map[string]interface{}{"card": h.mergeOwned(r, []models.Card{*card})[0]}
	if set, err := h.catalog.GetSet(r.Context(), card.SetID); err == nil {
		resp["set"] = set
	}
	utils.WriteSuccessResponse(w, resp)
}

// ListCards GET /api/cards?set_id=&page=&per_page= 按 id 顺序分页
func (h *CatalogHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	page := positiveInt(r.URL.Query().Get("page"), 1)
	perPage := positiveInt(r.URL.Query().Get("per_page"), 50)
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	cards, err := h.db.ListCards(r.Context(), database.CardQuery{
		SetID:  r.URL.Query().Get("set_id"),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	})
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	utils.WritePageResponse(w, cards, page, perPage, len(cards))
}

// Search GET /api/cards/search?q=&limit=
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		utils.WriteValidationErrorResponse(w, "Search query is required", "q")
		return
	}
	limit := positiveInt(r.URL.Query().Get("limit"), 20)
	if limit > maxPerPage {
		limit = maxPerPage
	}

	cards, err := h.catalog.Search(r.Context(), query, limit)
	if err != nil {
		writeError(w, r, h.log, "", err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"query": query,
		"cards": cards,
		"count": len(cards),
	})
}

// mergeOwned 未登录时全部为未拥有，不访问后端
func (h *CatalogHandler) mergeOwned(r *http.Request, cards []models.Card) []models.CardWithCollectionStatus {
	db := database.ForUser(h.db, middleware.GetAccessToken(r.Context()))
	tracker, err := collection.NewTracker(db, database.UserCollection, h.log)
	if err != nil {
		h.log.Error("❌ failed to create tracker", zap.Error(err))
		return collectionless(cards)
	}
	return tracker.MergeStatus(r.Context(), cards, middleware.UserID(r.Context()))
}

func collectionless(cards []models.Card) []models.CardWithCollectionStatus {
	out := make([]models.CardWithCollectionStatus, len(cards))
	for i, c := range cards {
		out[i] = models.CardWithCollectionStatus{Card: c}
	}
	return out
}

func positiveInt(v string, def int) int {
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return n
	}
	return def
}
