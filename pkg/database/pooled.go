package database

import (
	"context"

	"card-tracker-backend/pkg/models"
)

// UserScoper 可以切换为以终端用户身份访问的存储（行级安全策略生效）
type UserScoper interface {
	WithUser(accessToken string) DatabaseInterface
}

// ForUser 返回以 accessToken 身份访问的存储；不支持时原样返回
func ForUser(db DatabaseInterface, accessToken string) DatabaseInterface {
	if s, ok := db.(UserScoper); ok && accessToken != "" {
		return s.WithUser(accessToken)
	}
	return db
}

// pooledDatabase 每次调用时从连接池取得当前连接
type pooledDatabase struct {
	pool        *Pool
	config      DatabaseConfig
	accessToken string
}

// Pooled 返回由连接池支撑的 DatabaseInterface；连接失效或过期后自动重建
func Pooled(pool *Pool, config DatabaseConfig) DatabaseInterface {
	return &pooledDatabase{pool: pool, config: config}
}

func (p *pooledDatabase) WithUser(accessToken string) DatabaseInterface {
	cp := *p
	cp.accessToken = accessToken
	return &cp
}

func (p *pooledDatabase) get(ctx context.Context) (DatabaseInterface, error) {
	db, err := p.pool.Get(ctx, p.config)
	if err != nil {
		return nil, err
	}
	return ForUser(db, p.accessToken), nil
}

func (p *pooledDatabase) ListCardSets(ctx context.Context) ([]models.CardSet, error) {
	db, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	return db.ListCardSets(ctx)
}

func (p *pooledDatabase) GetCardSet(ctx context.Context, id string) (*models.CardSet, error) {
	db, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	return db.GetCardSet(ctx, id)
}

func (p *pooledDatabase) ListCardsBySet(ctx context.Context, setID string) ([]models.Card, error) {
	db, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	return db.ListCardsBySet(ctx, setID)
}

func (p *pooledDatabase) GetCard(ctx context.Context, id string) (*models.Card, error) {
	db, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	return db.GetCard(ctx, id)
}

func (p *pooledDatabase) ListCards(ctx context.Context, q CardQuery) ([]models.Card, error) {
	db, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	return db.ListCards(ctx, q)
}

func (p *pooledDatabase) ListCollectedCardIDs(ctx context.Context, kind CollectionKind, userID string) ([]string, error) {
	db, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	return db.ListCollectedCardIDs(ctx, kind, userID)
}

func (p *pooledDatabase) AddCollectionEntry(ctx context.Context, kind CollectionKind, userID, cardID string) error {
	db, err := p.get(ctx)
	if err != nil {
		return err
	}
	return db.AddCollectionEntry(ctx, kind, userID, cardID)
}

func (p *pooledDatabase) CountCollection(ctx context.Context, kind CollectionKind, userID string) (int, error) {
	db, err := p.get(ctx)
	if err != nil {
		return 0, err
	}
	return db.CountCollection(ctx, kind, userID)
}

func (p *pooledDatabase) GetGameCollectionCountSafe(ctx context.Context, userID string) (int, error) {
	db, err := p.get(ctx)
	if err != nil {
		return 0, err
	}
	return db.GetGameCollectionCountSafe(ctx, userID)
}

func (p *pooledDatabase) GetUserGameCollectionSafe(ctx context.Context, userID string) ([]string, error) {
	db, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	return db.GetUserGameCollectionSafe(ctx, userID)
}

func (p *pooledDatabase) AddCardToGameCollectionSafe(ctx context.Context, userID, cardID string) error {
	db, err := p.get(ctx)
	if err != nil {
		return err
	}
	return db.AddCardToGameCollectionSafe(ctx, userID, cardID)
}

func (p *pooledDatabase) HealthCheck(ctx context.Context) error {
	db, err := p.get(ctx)
	if err != nil {
		return err
	}
	return db.HealthCheck(ctx)
}

// Close 连接由连接池管理，这里不关闭
func (p *pooledDatabase) Close() error {
	return nil
}
