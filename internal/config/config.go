package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv        string
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string
	DataDir       string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	LLMProvider     string
	GeminiAPIKey    string
	DefaultLLMModel string

	CredentialsKey string

	TaskMaxRetries   int
	QueueConcurrency int
	Headless         bool

	Settings Settings
}

// Settings holds the structured configuration surfaces that do not fit
// single env vars: the tier quota table, the proxy seed list, and the
// human-behavior delay bounds. Loaded from SETTINGS_PATH when present.
type Settings struct {
	Viewport struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	} `yaml:"viewport"`

	Delays map[string]DelayRange `yaml:"delays"`

	Tiers map[string]TierQuota `yaml:"tiers"`

	Cache struct {
		Capacity   int    `yaml:"capacity"`
		Policy     string `yaml:"policy"`
		DefaultTTL int    `yaml:"default_ttl_seconds"`
	} `yaml:"cache"`

	Proxy struct {
		FailureThreshold   int         `yaml:"failure_threshold"`
		BanCooldownMinutes int         `yaml:"ban_cooldown_minutes"`
		Seeds              []ProxySeed `yaml:"seeds"`
		Feeds              []string    `yaml:"feeds"`
	} `yaml:"proxy"`
}

type DelayRange struct {
	MinMs int `yaml:"min_ms"`
	MaxMs int `yaml:"max_ms"`
}

type TierQuota struct {
	SearchesPerDay     int `yaml:"searches_per_day"`
	SearchesPerMonth   int `yaml:"searches_per_month"`
	JobDetailsPerDay   int `yaml:"job_details_per_day"`
	JobDetailsPerMonth int `yaml:"job_details_per_month"`
}

type ProxySeed struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Country     string `yaml:"country"`
	Residential bool   `yaml:"residential"`
	Provider    string `yaml:"provider"`
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func Load() Config {
	cfg := Config{
		AppEnv:        getenv("APP_ENV", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8082"),
		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DataDir:       getenv("DATA_DIR", "./data"),

		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:     getenv("SUPABASE_STORAGE_BUCKET", "applications"),

		LLMProvider:     getenv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		DefaultLLMModel: getenv("DEFAULT_LLM_MODEL", "gemini-1.5-flash"),

		CredentialsKey: os.Getenv("CREDENTIALS_KEY"),

		TaskMaxRetries:   getenvInt("TASK_MAX_RETRIES", 3),
		QueueConcurrency: getenvInt("QUEUE_CONCURRENCY", 5),
		Headless:         getenvBool("HEADLESS", true),
	}
	if cfg.RedisAddr == "" {
		panic(fmt.Errorf("REDIS_ADDR is required"))
	}

	settings, err := loadSettings(getenv("SETTINGS_PATH", "./settings.yaml"))
	if err != nil {
		panic(fmt.Errorf("settings: %w", err))
	}
	cfg.Settings = settings
	return cfg
}

func loadSettings(path string) (Settings, error) {
	s := defaultSettings()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

func defaultSettings() Settings {
	var s Settings
	s.Viewport.Width = 1366
	s.Viewport.Height = 768

	s.Delays = map[string]DelayRange{
		"navigation": {MinMs: 1000, MaxMs: 3000},
		"click":      {MinMs: 300, MaxMs: 1500},
		"typing":     {MinMs: 50, MaxMs: 200},
		"thinking":   {MinMs: 1000, MaxMs: 5000},
		"reading":    {MinMs: 2000, MaxMs: 10000},
	}

	s.Tiers = map[string]TierQuota{
		"basic":   {SearchesPerDay: 10, SearchesPerMonth: 100, JobDetailsPerDay: 50, JobDetailsPerMonth: 500},
		"plus":    {SearchesPerDay: 50, SearchesPerMonth: 500, JobDetailsPerDay: 250, JobDetailsPerMonth: 2500},
		"premium": {SearchesPerDay: 200, SearchesPerMonth: 2000, JobDetailsPerDay: 1000, JobDetailsPerMonth: 10000},
	}

	s.Cache.Capacity = 1000
	s.Cache.Policy = "lru"
	s.Cache.DefaultTTL = 900

	s.Proxy.FailureThreshold = 3
	s.Proxy.BanCooldownMinutes = 30
	return s
}
