package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string `toml:"environment"`
	Port        string `toml:"port"`

	// 数据库配置
	UseLocalDB      bool   `toml:"use_local_db"`
	LocalDataDir    string `toml:"local_data_dir"`
	PostgresDSN     string `toml:"postgres_dsn"`
	SupabaseURL     string `toml:"supabase_url"`
	SupabaseKey     string `toml:"supabase_key"`
	SupabaseAnonKey string `toml:"supabase_anon_key"`

	// JWT配置（托管认证服务签发的 access token）
	JWTSecret string `toml:"jwt_secret"`

	// Redis（会话事件转发）
	RedisAddr      string `toml:"redis_addr"`
	RedisPassword  string `toml:"redis_password"`
	RedisDB        int    `toml:"redis_db"`
	SessionChannel string `toml:"session_channel"`
	SessionFile    string `toml:"session_file"`

	// 游戏与目录
	BoosterPackSize  int           `toml:"booster_pack_size"`
	CatalogCacheSize int           `toml:"catalog_cache_size"`
	CatalogCacheTTL  time.Duration `toml:"-"` // 仅支持环境变量 CATALOG_CACHE_TTL

	// CORS配置
	AllowedOrigins []string `toml:"allowed_origins"`

	// 调试配置
	Debug bool `toml:"debug"`
}

// LoadConfig 加载配置（.env 文件 + 环境变量 + 可选 TOML 文件）
func LoadConfig() *Config {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	// godotenv.Load 不会覆盖已存在的环境变量；文件不存在时忽略错误
	switch env {
	case "production":
		_ = godotenv.Load(".env.production")
	default:
		_ = godotenv.Load(".env.local")
	}

	config := &Config{
		Environment:      getEnvWithDefault("ENVIRONMENT", "development"),
		Port:             getEnvWithDefault("PORT", "3000"),
		UseLocalDB:       getEnvBool("USE_LOCAL_DB", false),
		LocalDataDir:     getEnvWithDefault("LOCAL_DATA_DIR", "./data"),
		JWTSecret:        strings.TrimSpace(os.Getenv("SUPABASE_JWT_SECRET")),
		Debug:            getEnvBool("DEBUG", false),
		RedisAddr:        strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		SessionChannel:   getEnvWithDefault("SESSION_CHANNEL", "card-tracker:session"),
		SessionFile:      strings.TrimSpace(os.Getenv("SESSION_FILE")),
		BoosterPackSize:  getEnvInt("BOOSTER_PACK_SIZE", 10),
		CatalogCacheSize: getEnvInt("CATALOG_CACHE_SIZE", 2048),
		CatalogCacheTTL:  getEnvDuration("CATALOG_CACHE_TTL", 10*time.Minute),
	}

	// 数据库配置
	// Trim whitespace to avoid trailing spaces/newlines from env sources
	config.PostgresDSN = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	config.SupabaseURL = strings.TrimSpace(os.Getenv("SUPABASE_URL"))
	config.SupabaseKey = strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_KEY"))
	config.SupabaseAnonKey = strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY"))

	// CORS配置
	allowedOrigins := getEnvWithDefault("ALLOWED_ORIGINS", "*")
	if allowedOrigins == "*" {
		config.AllowedOrigins = []string{"*"}
	} else {
		config.AllowedOrigins = splitAndTrim(allowedOrigins)
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := config.ApplyFile(path); err != nil {
			fmt.Printf("⚠️  WARNING: ignoring config file %s: %v\n", path, err)
		}
	}

	// 生产环境关闭调试，并禁用本地文件数据库
	if config.Environment == "production" {
		config.Debug = false
		if config.PostgresDSN != "" || config.SupabaseURL != "" {
			config.UseLocalDB = false
		}
	}

	return config
}

// ApplyFile 用 TOML 文件中出现的字段覆盖当前配置
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	// toml 只会写入文件中出现的键，其余字段保持原值
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.JWTSecret == "" && c.IsProduction() {
		return fmt.Errorf("SUPABASE_JWT_SECRET must be set in production")
	}

	if c.BoosterPackSize <= 0 {
		return fmt.Errorf("BOOSTER_PACK_SIZE must be positive, got %d", c.BoosterPackSize)
	}

	switch {
	case c.UseLocalDB:
		if c.LocalDataDir == "" {
			return fmt.Errorf("LOCAL_DATA_DIR is required when USE_LOCAL_DB is set")
		}
	case c.PostgresDSN != "":
	case c.SupabaseURL != "" && c.supabaseKey() != "":
	default:
		return fmt.Errorf("数据库配置不完整：请配置 POSTGRES_DSN 或 SUPABASE_URL+SUPABASE_SERVICE_KEY，或开启 USE_LOCAL_DB")
	}

	return nil
}

// supabaseKey 优先使用 service key，其次 anon key
func (c *Config) supabaseKey() string {
	if c.SupabaseKey != "" {
		return c.SupabaseKey
	}
	return c.SupabaseAnonKey
}

// SupabaseAPIKey 返回访问 REST API 使用的 key
func (c *Config) SupabaseAPIKey() string {
	return c.supabaseKey()
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// 辅助函数

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
