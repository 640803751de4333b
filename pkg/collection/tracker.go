// Package collection merges catalog cards with a user's ownership and records
// new ownership, using the direct table as the primary path and the backend's
// remote procedures as a single fallback.
package collection

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"card-tracker-backend/pkg/database"
	"card-tracker-backend/pkg/logger"
	"card-tracker-backend/pkg/models"
)

var (
	// ErrAddFailed is returned when both the primary insert and the fallback failed.
	ErrAddFailed = errors.New("failed to add card to collection")
	// ErrNoUser is returned by mutating calls made without a user id.
	ErrNoUser = errors.New("user id is required")
)

// Store 收藏读写所需的存储操作
type Store interface {
	ListCollectedCardIDs(ctx context.Context, kind database.CollectionKind, userID string) ([]string, error)
	AddCollectionEntry(ctx context.Context, kind database.CollectionKind, userID, cardID string) error
	CountCollection(ctx context.Context, kind database.CollectionKind, userID string) (int, error)

	GetGameCollectionCountSafe(ctx context.Context, userID string) (int, error)
	GetUserGameCollectionSafe(ctx context.Context, userID string) ([]string, error)
	AddCardToGameCollectionSafe(ctx context.Context, userID, cardID string) error
}

// fallback 远程过程后备路径；真实收藏表没有对应过程
type fallback struct {
	list  func(ctx context.Context, userID string) ([]string, error)
	add   func(ctx context.Context, userID, cardID string) error
	count func(ctx context.Context, userID string) (int, error)
}

// Tracker 绑定到一个收藏表的读取、合并与写入
type Tracker struct {
	kind     database.CollectionKind
	store    Store
	fallback *fallback
	log      *zap.Logger
}

// NewTracker 创建收藏跟踪器；game_collections 自动接入远程过程后备路径
func NewTracker(store Store, kind database.CollectionKind, log *zap.Logger) (*Tracker, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown collection %q", kind)
	}
	t := &Tracker{
		kind:  kind,
		store: store,
		log:   logger.OrNop(log).With(zap.String("collection", string(kind))),
	}
	if kind == database.GameCollection {
		t.fallback = &fallback{
			list:  store.GetUserGameCollectionSafe,
			add:   store.AddCardToGameCollectionSafe,
			count: store.GetGameCollectionCountSafe,
		}
	}
	return t, nil
}

// Kind 返回绑定的收藏表
func (t *Tracker) Kind() database.CollectionKind { return t.kind }

// OwnedCardIDs 返回用户已拥有的卡牌 id 集合
func (t *Tracker) OwnedCardIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	ids, err := t.store.ListCollectedCardIDs(ctx, t.kind, userID)
	if err != nil {
		if t.fallback == nil {
			return nil, err
		}
		t.log.Warn("⚠️ primary collection read failed, using fallback", zap.String("user_id", userID), zap.Error(err))
		var fbErr error
		ids, fbErr = t.fallback.list(ctx, userID)
		if fbErr != nil {
			return nil, errors.Join(err, fbErr)
		}
	}

	owned := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		owned[id] = struct{}{}
	}
	return owned, nil
}

// MergeStatus 按输入顺序标注每张卡牌是否已拥有。
// 未登录时不访问后端；读取全部失败时所有卡牌视为未拥有。
func (t *Tracker) MergeStatus(ctx context.Context, cards []models.Card, userID string) []models.CardWithCollectionStatus {
	out := make([]models.CardWithCollectionStatus, len(cards))
	for i, c := range cards {
		out[i] = models.CardWithCollectionStatus{Card: c}
	}
	if userID == "" || len(cards) == 0 {
		return out
	}

	owned, err := t.OwnedCardIDs(ctx, userID)
	if err != nil {
		t.log.Error("❌ collection status unavailable, showing all cards as not owned",
			zap.String("user_id", userID), zap.Error(err))
		return out
	}
	for i := range out {
		_, out[i].Owned = owned[out[i].ID]
	}
	return out
}

// Add 把卡牌加入收藏；重复添加不会新增记录
func (t *Tracker) Add(ctx context.Context, userID, cardID string) error {
	if userID == "" {
		return ErrNoUser
	}
	if cardID == "" {
		return fmt.Errorf("card id is required: %w", database.ErrNotFound)
	}

	err := t.store.AddCollectionEntry(ctx, t.kind, userID, cardID)
	if err == nil {
		t.log.Info("✅ card added", zap.String("user_id", userID), zap.String("card_id", cardID))
		return nil
	}
	if errors.Is(err, database.ErrNotFound) {
		return err
	}
	if t.fallback == nil {
		t.log.Error("❌ add card failed", zap.String("user_id", userID), zap.String("card_id", cardID), zap.Error(err))
		return errors.Join(ErrAddFailed, err)
	}

	t.log.Warn("⚠️ primary insert failed, using fallback", zap.String("card_id", cardID), zap.Error(err))
	if fbErr := t.fallback.add(ctx, userID, cardID); fbErr != nil {
		t.log.Error("❌ add card failed on both paths",
			zap.String("user_id", userID), zap.String("card_id", cardID), zap.Error(fbErr))
		return errors.Join(ErrAddFailed, err, fbErr)
	}
	t.log.Info("✅ card added via fallback", zap.String("user_id", userID), zap.String("card_id", cardID))
	return nil
}

// Count 返回收藏数量
func (t *Tracker) Count(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrNoUser
	}
	n, err := t.store.CountCollection(ctx, t.kind, userID)
	if err == nil {
		return n, nil
	}
	if t.fallback == nil {
		return 0, err
	}
	t.log.Warn("⚠️ primary count failed, using fallback", zap.String("user_id", userID), zap.Error(err))
	n, fbErr := t.fallback.count(ctx, userID)
	if fbErr != nil {
		return 0, errors.Join(err, fbErr)
	}
	return n, nil
}
