// Package booster implements the booster-pack mini game: a signed-in user
// opens a pack of catalog cards and claims them into the game collection.
package booster

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"card-tracker-backend/pkg/collection"
	"card-tracker-backend/pkg/database"
	"card-tracker-backend/pkg/logger"
	"card-tracker-backend/pkg/models"
)

// DefaultPackSize 每包卡牌数量
const DefaultPackSize = 10

// ErrNotAuthenticated is returned when the game is used without a signed-in user.
var ErrNotAuthenticated = errors.New("sign in to open booster packs")

// CardLister 有序卡牌查询
type CardLister interface {
	ListCards(ctx context.Context, q database.CardQuery) ([]models.Card, error)
}

// Pack 一次开包结果
type Pack struct {
	SetID string                            `json:"set_id,omitempty"`
	Cards []models.CardWithCollectionStatus `json:"cards"`
}

// ClaimResult 单张卡牌的领取结果
type ClaimResult struct {
	CardID string `json:"card_id"`
	Added  bool   `json:"added"`
	Error  string `json:"error,omitempty"`
}

// ClaimSummary 领取结果与刷新后的游戏收藏数量（刷新失败时为 -1）
type ClaimSummary struct {
	Results []ClaimResult `json:"results"`
	Count   int           `json:"count"`
}

// Game 卡包小游戏
type Game struct {
	cards    CardLister
	tracker  *collection.Tracker
	packSize int
	log      *zap.Logger
}

// NewGame 创建游戏；tracker 必须绑定 game_collections
func NewGame(cards CardLister, tracker *collection.Tracker, packSize int, log *zap.Logger) (*Game, error) {
	if tracker.Kind() != database.GameCollection {
		return nil, fmt.Errorf("booster game requires the %s tracker, got %s", database.GameCollection, tracker.Kind())
	}
	if packSize <= 0 {
		packSize = DefaultPackSize
	}
	return &Game{cards: cards, tracker: tracker, packSize: packSize, log: logger.OrNop(log)}, nil
}

// PackSize 返回每包卡牌数量
func (g *Game) PackSize() int { return g.packSize }

// Open 开一包卡：按 id 顺序取前 PackSize 张（可限定卡组），并标注游戏收藏状态
func (g *Game) Open(ctx context.Context, userID, setID string) (*Pack, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	cards, err := g.cards.ListCards(ctx, database.CardQuery{SetID: setID, Limit: g.packSize})
	if err != nil {
		return nil, fmt.Errorf("open booster pack: %w", err)
	}
	if len(cards) == 0 && setID != "" {
		return nil, fmt.Errorf("no cards in set %s: %w", setID, database.ErrNotFound)
	}

	g.log.Info("🎁 booster pack opened",
		zap.String("user_id", userID), zap.String("set_id", setID), zap.Int("cards", len(cards)))
	return &Pack{SetID: setID, Cards: g.tracker.MergeStatus(ctx, cards, userID)}, nil
}

// Claim 把选中的卡牌加入游戏收藏；重复 id 只处理一次
func (g *Game) Claim(ctx context.Context, userID string, cardIDs []string) (*ClaimSummary, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	seen := make(map[string]struct{}, len(cardIDs))
	results := make([]ClaimResult, 0, len(cardIDs))
	for _, id := range cardIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		res := ClaimResult{CardID: id, Added: true}
		if err := g.tracker.Add(ctx, userID, id); err != nil {
			res.Added = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}

	count, err := g.tracker.Count(ctx, userID)
	if err != nil {
		g.log.Warn("⚠️ failed to refresh game collection count", zap.String("user_id", userID), zap.Error(err))
		count = -1
	}
	return &ClaimSummary{Results: results, Count: count}, nil
}

// Collection 返回用户游戏收藏中的卡牌 id
func (g *Game) Collection(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	owned, err := g.tracker.OwnedCardIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(owned))
	for id := range owned {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Count 返回游戏收藏数量
func (g *Game) Count(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrNotAuthenticated
	}
	return g.tracker.Count(ctx, userID)
}
