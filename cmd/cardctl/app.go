package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"card-tracker-backend/pkg/booster"
	"card-tracker-backend/pkg/catalog"
	"card-tracker-backend/pkg/collection"
	"card-tracker-backend/pkg/config"
	"card-tracker-backend/pkg/database"
	"card-tracker-backend/pkg/logger"
	"card-tracker-backend/pkg/models"
	"card-tracker-backend/pkg/session"
)

// errSignInRequired 未登录提示
var errSignInRequired = errors.New("sign in with 'cardctl login' first")

// cliApp 命令共享的依赖
type cliApp struct {
	cfg     *config.Config
	log     *zap.Logger
	db      database.DatabaseInterface
	catalog *catalog.Reader
	store   *session.FileStore

	// auth 可在测试中替换
	auth *session.GoTrueClient

	redisOnce sync.Once
	rdb       *redis.Client
	redisErr  error
}

func newApp(ctx context.Context) (*cliApp, error) {
	cfg := config.LoadConfig()
	if configFile != "" {
		if err := cfg.ApplyFile(configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg)
	if err != nil {
		return nil, err
	}
	if !verbose {
		log = log.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
	}

	if ctx == nil {
		ctx = context.Background()
	}
	db, err := database.GetDatabase(ctx, database.DatabaseConfig{
		UseLocalDB:   cfg.UseLocalDB,
		LocalDataDir: cfg.LocalDataDir,
		PostgresDSN:  cfg.PostgresDSN,
		SupabaseURL:  cfg.SupabaseURL,
		SupabaseKey:  cfg.SupabaseAPIKey(),
		Debug:        cfg.Debug,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	store, err := session.NewFileStore(cfg.SessionFile)
	if err != nil {
		return nil, err
	}

	a := &cliApp{cfg: cfg, log: log, db: db, store: store}
	if err := a.init(); err != nil {
		return nil, err
	}
	if cfg.SupabaseURL != "" {
		key := cfg.SupabaseAnonKey
		if key == "" {
			key = cfg.SupabaseAPIKey()
		}
		a.auth = session.NewGoTrueClient(cfg.SupabaseURL, key,
			session.WithFileStore(store), session.WithAuthLogger(log))
	}
	return a, nil
}

// init 创建目录读取器
func (a *cliApp) init() error {
	reader, err := catalog.NewReader(a.db, catalog.Options{
		CacheSize: a.cfg.CatalogCacheSize,
		CacheTTL:  a.cfg.CatalogCacheTTL,
		Logger:    a.log,
	})
	if err != nil {
		return err
	}
	a.catalog = reader
	return nil
}

// authClient 返回认证客户端；pub 非空时登录/退出事件同时转发到 Redis
func (a *cliApp) authClient(pub session.Publisher) (*session.GoTrueClient, error) {
	if a.auth == nil {
		return nil, errors.New("SUPABASE_URL is required to sign in")
	}
	if pub == nil {
		return a.auth, nil
	}
	key := a.cfg.SupabaseAnonKey
	if key == "" {
		key = a.cfg.SupabaseAPIKey()
	}
	return session.NewGoTrueClient(a.cfg.SupabaseURL, key,
		session.WithFileStore(a.store), session.WithAuthLogger(a.log), session.WithPublisher(pub)), nil
}

// redis 按需连接 Redis；未配置时返回 nil
func (a *cliApp) redis(ctx context.Context) (*redis.Client, error) {
	if a.cfg.RedisAddr == "" {
		return nil, nil
	}
	a.redisOnce.Do(func() {
		a.rdb, a.redisErr = session.NewRedisClient(ctx, session.RedisOptions{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
	})
	return a.rdb, a.redisErr
}

// currentSession 返回本地保存的会话；未登录时返回 errSignInRequired
func (a *cliApp) currentSession(ctx context.Context) (*models.Session, error) {
	if a.auth == nil {
		return nil, errSignInRequired
	}
	sess, err := a.auth.Current(ctx)
	if errors.Is(err, session.ErrNoSession) {
		return nil, errSignInRequired
	}
	return sess, err
}

// tracker 以会话身份访问指定收藏表
func (a *cliApp) tracker(sess *models.Session, kind database.CollectionKind) (*collection.Tracker, error) {
	return collection.NewTracker(database.ForUser(a.db, sess.AccessToken), kind, a.log)
}

// game 以会话身份创建卡包游戏
func (a *cliApp) game(sess *models.Session) (*booster.Game, error) {
	db := database.ForUser(a.db, sess.AccessToken)
	tracker, err := collection.NewTracker(db, database.GameCollection, a.log)
	if err != nil {
		return nil, err
	}
	return booster.NewGame(db, tracker, a.cfg.BoosterPackSize, a.log)
}

// Count 实现 session.Counter：每次按最新会话读取游戏收藏数量
func (a *cliApp) Count(ctx context.Context, userID string) (int, error) {
	sess, err := a.currentSession(ctx)
	if err != nil {
		return 0, err
	}
	g, err := a.game(sess)
	if err != nil {
		return 0, err
	}
	return g.Count(ctx, userID)
}

// Close 释放连接
func (a *cliApp) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	database.DefaultPool().CloseAll()
	_ = a.log.Sync()
}
