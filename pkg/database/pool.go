package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"card-tracker-backend/pkg/logger"
)

const (
	// 连接空闲超过该时长即被回收
	defaultIdleTimeout = 10 * time.Minute
	// 两次健康检查的最小间隔
	defaultHealthInterval = 30 * time.Second
	// 单次健康检查的超时
	healthCheckTimeout = 5 * time.Second
)

type pooledConn struct {
	db          DatabaseInterface
	lastUsed    time.Time
	lastChecked time.Time
}

// Pool 按配置复用数据库连接（冷启动之间保留，Serverless 下尤其重要）
type Pool struct {
	mu             sync.Mutex
	conns          map[string]*pooledConn
	idleTimeout    time.Duration
	healthInterval time.Duration
	open           func(DatabaseConfig) (DatabaseInterface, error)
	now            func() time.Time
}

// NewPool 创建连接池；open 为 nil 时使用 NewDatabase
func NewPool(open func(DatabaseConfig) (DatabaseInterface, error)) *Pool {
	if open == nil {
		open = NewDatabase
	}
	return &Pool{
		conns:          make(map[string]*pooledConn),
		idleTimeout:    defaultIdleTimeout,
		healthInterval: defaultHealthInterval,
		open:           open,
		now:            time.Now,
	}
}

// Get 返回与配置对应的连接；已有连接健康检查失败时重新创建。
// 健康检查与建立连接都在锁外进行；调用方取消请求不会使共享连接被判定为不健康。
func (p *Pool) Get(ctx context.Context, config DatabaseConfig) (DatabaseInterface, error) {
	log := logger.OrNop(config.Logger)
	key := configKey(config)

	p.mu.Lock()
	conn, ok := p.conns[key]
	if ok {
		now := p.now()
		switch {
		case now.Sub(conn.lastUsed) > p.idleTimeout:
			log.Info("⏰ Database connection expired, recreating")
			p.evictLocked(key, conn)
			ok = false
		case now.Sub(conn.lastChecked) < p.healthInterval:
			conn.lastUsed = now
			p.mu.Unlock()
			return conn.db, nil
		}
	}
	p.mu.Unlock()

	if ok {
		checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), healthCheckTimeout)
		err := conn.db.HealthCheck(checkCtx)
		cancel()

		p.mu.Lock()
		cur, present := p.conns[key]
		switch {
		case present && cur != conn:
			// 其他请求已经替换了连接
			cur.lastUsed = p.now()
			p.mu.Unlock()
			return cur.db, nil
		case present && err == nil:
			now := p.now()
			conn.lastUsed, conn.lastChecked = now, now
			p.mu.Unlock()
			log.Debug("♻️  Reusing database connection", zap.String("key", key[:8]))
			return conn.db, nil
		case present:
			log.Warn("❌ Database health check failed, recreating", zap.Error(err))
			p.evictLocked(key, conn)
		}
		p.mu.Unlock()
	}

	log.Info("🔄 Creating new database connection", zap.String("key", key[:8]))
	db, err := p.open(config)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, exists := p.conns[key]; exists {
		// 并发创建时保留先放入池中的连接
		_ = db.Close()
		cur.lastUsed = p.now()
		return cur.db, nil
	}
	now := p.now()
	p.conns[key] = &pooledConn{db: db, lastUsed: now, lastChecked: now}
	return db, nil
}

// evictLocked 关闭并移除连接；调用方持有 p.mu
func (p *Pool) evictLocked(key string, conn *pooledConn) {
	_ = conn.db.Close()
	delete(p.conns, key)
}

// CleanupIdle 关闭空闲超时的连接，返回清理数量
func (p *Pool) CleanupIdle() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for key, conn := range p.conns {
		if p.now().Sub(conn.lastUsed) > p.idleTimeout {
			_ = conn.db.Close()
			delete(p.conns, key)
			n++
		}
	}
	return n
}

// RunJanitor 定期清理空闲连接，直到 ctx 结束
func (p *Pool) RunJanitor(ctx context.Context, interval time.Duration, log *zap.Logger) {
	log = logger.OrNop(log)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.CleanupIdle(); n > 0 {
				log.Info("🧹 Cleaned up idle database connections", zap.Int("count", n))
			}
		}
	}
}

// Stats 连接池统计信息
func (p *Pool) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns := make([]map[string]interface{}, 0, len(p.conns))
	for key, conn := range p.conns {
		conns = append(conns, map[string]interface{}{
			"key":       key[:8] + "...",
			"last_used": conn.lastUsed.Format(time.RFC3339),
			"age":       p.now().Sub(conn.lastUsed).String(),
		})
	}
	return map[string]interface{}{
		"total_connections": len(p.conns),
		"connections":       conns,
	}
}

// CloseAll 关闭所有连接
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, conn := range p.conns {
		_ = conn.db.Close()
		delete(p.conns, key)
	}
}

// configKey 生成配置的唯一键（不暴露凭据原文）
func configKey(c DatabaseConfig) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%t|%s|%s|%s|%s", c.UseLocalDB, c.LocalDataDir, c.PostgresDSN, c.SupabaseURL, c.SupabaseKey)))
	return hex.EncodeToString(sum[:])
}

var (
	globalPool     *Pool
	globalPoolOnce sync.Once
)

// DefaultPool 返回进程级共享连接池（Serverless 冷启动间复用）
func DefaultPool() *Pool {
	globalPoolOnce.Do(func() {
		globalPool = NewPool(nil)
	})
	return globalPool
}

// GetDatabase 获取进程级共享连接
func GetDatabase(ctx context.Context, config DatabaseConfig) (DatabaseInterface, error) {
	return DefaultPool().Get(ctx, config)
}
