package database

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"card-tracker-backend/pkg/logger"
	"card-tracker-backend/pkg/models"
)

// ErrNotFound 表示请求的记录不存在（卡组或卡牌 ID 无效）
var ErrNotFound = errors.New("not found")

// CollectionKind 区分真实收藏表与卡包小游戏收藏表
type CollectionKind string

const (
	UserCollection CollectionKind = "user_collections"
	GameCollection CollectionKind = "game_collections"
)

// Valid reports whether k names one of the two collection tables.
func (k CollectionKind) Valid() bool {
	return k == UserCollection || k == GameCollection
}

// 远程过程（主路径失败时的后备路径）
const (
	ProcGameCollectionCount = "get_game_collection_count_safe"
	ProcUserGameCollection  = "get_user_game_collection_safe"
	ProcAddCardToGame       = "add_card_to_game_collection_safe"
)

// CardQuery 有序卡牌查询参数
type CardQuery struct {
	SetID  string // 可选：只查询某个卡组
	Limit  int
	Offset int
}

// DatabaseInterface 定义后端存储访问接口
type DatabaseInterface interface {
	// 目录（只读参考数据）
	ListCardSets(ctx context.Context) ([]models.CardSet, error)
	GetCardSet(ctx context.Context, id string) (*models.CardSet, error)
	ListCardsBySet(ctx context.Context, setID string) ([]models.Card, error)
	GetCard(ctx context.Context, id string) (*models.Card, error)
	// ListCards 按 id 升序返回卡牌
	ListCards(ctx context.Context, q CardQuery) ([]models.Card, error)

	// 收藏表直接访问（主路径）
	ListCollectedCardIDs(ctx context.Context, kind CollectionKind, userID string) ([]string, error)
	// AddCollectionEntry 幂等插入：(user, card) 已存在时不报错也不新增行
	AddCollectionEntry(ctx context.Context, kind CollectionKind, userID, cardID string) error
	CountCollection(ctx context.Context, kind CollectionKind, userID string) (int, error)

	// 远程过程（后备路径）
	GetGameCollectionCountSafe(ctx context.Context, userID string) (int, error)
	GetUserGameCollectionSafe(ctx context.Context, userID string) ([]string, error)
	AddCardToGameCollectionSafe(ctx context.Context, userID, cardID string) error

	// 健康检查
	HealthCheck(ctx context.Context) error

	// 关闭连接
	Close() error
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	UseLocalDB   bool
	LocalDataDir string
	PostgresDSN  string
	SupabaseURL  string
	SupabaseKey  string
	Debug        bool
	Logger       *zap.Logger
}

// NewDatabase 根据配置选择数据库实现：PostgreSQL > Supabase > 本地文件
func NewDatabase(config DatabaseConfig) (DatabaseInterface, error) {
	log := logger.OrNop(config.Logger)

	// Serverless 环境优先 Supabase REST（避免长连接）
	if isServerlessEnvironment() && !config.UseLocalDB && config.SupabaseURL != "" && config.SupabaseKey != "" {
		log.Info("🚀 Using Supabase REST API (serverless)")
		return NewSupabaseDatabase(config.SupabaseURL, config.SupabaseKey, WithSupabaseLogger(log)), nil
	}

	if config.PostgresDSN != "" && !config.UseLocalDB {
		log.Info("🗄️ Using PostgreSQL database")
		db, err := NewPostgresDatabase(config.PostgresDSN, log)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	if config.SupabaseURL != "" && config.SupabaseKey != "" && !config.UseLocalDB {
		log.Info("🧰 Using Supabase REST API")
		return NewSupabaseDatabase(config.SupabaseURL, config.SupabaseKey, WithSupabaseLogger(log)), nil
	}

	if config.UseLocalDB {
		log.Info("📁 Using local file database", zap.String("dir", config.LocalDataDir))
		db, err := NewLocalDatabase(config.LocalDataDir)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	return nil, fmt.Errorf("no valid database configuration found: configure POSTGRES_DSN, SUPABASE_URL+SUPABASE_SERVICE_KEY or USE_LOCAL_DB")
}

// isServerlessEnvironment 检查是否运行在 Vercel / Lambda
func isServerlessEnvironment() bool {
	return os.Getenv("VERCEL_ENV") != "" || os.Getenv("VERCEL_URL") != "" || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}
