package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Solana    SolanaConfig    `mapstructure:"solana"`
	Jupiter   JupiterConfig   `mapstructure:"jupiter"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Detectors DetectorsConfig `mapstructure:"detectors"`
	Auth      AuthConfig      `mapstructure:"auth"`
	PaaS      PaaSConfig      `mapstructure:"paas"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// CacheConfig selects the price cache backend: "memory" or "redis".
type CacheConfig struct {
	Driver        string        `mapstructure:"driver"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	PriceTTL      time.Duration `mapstructure:"price_ttl"`
}

type OracleConfig struct {
	HermesURL string        `mapstructure:"hermes_url"`
	FeedID    string        `mapstructure:"feed_id"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type SolanaConfig struct {
	RPCURLs  []string      `mapstructure:"rpc_urls"`
	Timeout  time.Duration `mapstructure:"timeout"`
	SOLMint  string        `mapstructure:"sol_mint"`
	USDCMint string        `mapstructure:"usdc_mint"`
}

type JupiterConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

type GeminiConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type EngineConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	TickSpec             string        `mapstructure:"tick_spec"`
	OwnerConcurrency     int           `mapstructure:"owner_concurrency"`
	OwnerTimeout         time.Duration `mapstructure:"owner_timeout"`
	StaleAfter           time.Duration `mapstructure:"stale_after"`
	TriggerThrottle      time.Duration `mapstructure:"trigger_throttle"`
	TrackedOwnerLookback time.Duration `mapstructure:"tracked_owner_lookback"`
	OneShotTriggers      bool          `mapstructure:"one_shot_triggers"`
	SampleRetention      time.Duration `mapstructure:"sample_retention"`
	RetentionSpec        string        `mapstructure:"retention_spec"`
	StaleSweepSpec       string        `mapstructure:"stale_sweep_spec"`
}

type DetectorsConfig struct {
	Drawdown   DrawdownConfig   `mapstructure:"drawdown"`
	Buffer     BufferConfig     `mapstructure:"buffer"`
	Volatility VolatilityConfig `mapstructure:"volatility"`
}

type DrawdownConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Window       time.Duration `mapstructure:"window"`
	MinDrawdown  float64       `mapstructure:"min_drawdown"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
	MinBalance   float64       `mapstructure:"min_balance"`
	SizeFraction float64       `mapstructure:"size_fraction"`
	MaxSize      float64       `mapstructure:"max_size"`
	MinSize      float64       `mapstructure:"min_size"`
	SlippageBps  int           `mapstructure:"slippage_bps"`
}

type BufferConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	MinSOL         float64       `mapstructure:"min_sol"`
	MinUSDC        float64       `mapstructure:"min_usdc"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	ActiveLookback time.Duration `mapstructure:"active_lookback"`
	SizeFraction   float64       `mapstructure:"size_fraction"`
	MinSize        float64       `mapstructure:"min_size"`
	MaxSize        float64       `mapstructure:"max_size"`
	SlippageBps    int           `mapstructure:"slippage_bps"`
}

type VolatilityConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Window       time.Duration `mapstructure:"window"`
	MaxSamples   int           `mapstructure:"max_samples"`
	MinSamples   int           `mapstructure:"min_samples"`
	MinReturns   int           `mapstructure:"min_returns"`
	MinRangePct  float64       `mapstructure:"min_range_pct"`
	MinStdev     float64       `mapstructure:"min_stdev"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
	MaxUSDC      float64       `mapstructure:"max_usdc"`
	MinSOL       float64       `mapstructure:"min_sol"`
	SizeFraction float64       `mapstructure:"size_fraction"`
	MinSize      float64       `mapstructure:"min_size"`
	MaxSize      float64       `mapstructure:"max_size"`
	SlippageBps  int           `mapstructure:"slippage_bps"`
}

type AuthConfig struct {
	Disabled  bool          `mapstructure:"disabled"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type PaaSConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Agent   string `mapstructure:"agent"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IBRL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	SetDefaults(v)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Solana.RPCURLs = cleanURLs(cfg.Solana.RPCURLs)

	return cfg, nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis_addr", "127.0.0.1:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.price_ttl", "15s")

	v.SetDefault("oracle.hermes_url", "https://hermes.pyth.network")
	v.SetDefault("oracle.feed_id", "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d")
	v.SetDefault("oracle.timeout", "12s")

	v.SetDefault("solana.rpc_urls", []string{"https://api.mainnet-beta.solana.com"})
	v.SetDefault("solana.timeout", "12s")
	v.SetDefault("solana.sol_mint", "So11111111111111111111111111111111111111112")
	v.SetDefault("solana.usdc_mint", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	v.SetDefault("jupiter.base_url", "https://lite-api.jup.ag")
	v.SetDefault("jupiter.timeout", "12s")
	v.SetDefault("jupiter.rate_per_second", 1.0)
	v.SetDefault("jupiter.burst", 2)

	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.timeout", "20s")

	v.SetDefault("engine.enabled", true)
	v.SetDefault("engine.tick_spec", "@every 30s")
	v.SetDefault("engine.owner_concurrency", 8)
	v.SetDefault("engine.owner_timeout", "45s")
	v.SetDefault("engine.stale_after", "2m")
	v.SetDefault("engine.trigger_throttle", "15m")
	v.SetDefault("engine.tracked_owner_lookback", "168h")
	v.SetDefault("engine.one_shot_triggers", false)
	v.SetDefault("engine.sample_retention", "48h")
	v.SetDefault("engine.retention_spec", "@every 1h")
	v.SetDefault("engine.stale_sweep_spec", "@every 1m")

	v.SetDefault("detectors.drawdown.enabled", true)
	v.SetDefault("detectors.drawdown.window", "12m")
	v.SetDefault("detectors.drawdown.min_drawdown", 0.03)
	v.SetDefault("detectors.drawdown.cooldown", "30m")
	v.SetDefault("detectors.drawdown.min_balance", 0.06)
	v.SetDefault("detectors.drawdown.size_fraction", 0.25)
	v.SetDefault("detectors.drawdown.max_size", 0.25)
	v.SetDefault("detectors.drawdown.min_size", 0.05)
	v.SetDefault("detectors.drawdown.slippage_bps", 50)

	v.SetDefault("detectors.buffer.enabled", true)
	v.SetDefault("detectors.buffer.min_sol", 0.15)
	v.SetDefault("detectors.buffer.min_usdc", 2)
	v.SetDefault("detectors.buffer.cooldown", "2h")
	v.SetDefault("detectors.buffer.active_lookback", "168h")
	v.SetDefault("detectors.buffer.size_fraction", 0.08)
	v.SetDefault("detectors.buffer.min_size", 0.02)
	v.SetDefault("detectors.buffer.max_size", 0.05)
	v.SetDefault("detectors.buffer.slippage_bps", 50)

	v.SetDefault("detectors.volatility.enabled", true)
	v.SetDefault("detectors.volatility.window", "30m")
	v.SetDefault("detectors.volatility.max_samples", 500)
	v.SetDefault("detectors.volatility.min_samples", 12)
	v.SetDefault("detectors.volatility.min_returns", 10)
	v.SetDefault("detectors.volatility.min_range_pct", 0.035)
	v.SetDefault("detectors.volatility.min_stdev", 0.006)
	v.SetDefault("detectors.volatility.cooldown", "6h")
	v.SetDefault("detectors.volatility.max_usdc", 25)
	v.SetDefault("detectors.volatility.min_sol", 0.25)
	v.SetDefault("detectors.volatility.size_fraction", 0.12)
	v.SetDefault("detectors.volatility.min_size", 0.05)
	v.SetDefault("detectors.volatility.max_size", 0.15)
	v.SetDefault("detectors.volatility.slippage_bps", 50)

	v.SetDefault("auth.disabled", true)
	v.SetDefault("auth.issuer", "ibrl-agent")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("paas.agent", "ibrl-agent")
}

func cleanURLs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		// Env values arrive as one comma separated string.
		for _, part := range strings.Split(raw, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
