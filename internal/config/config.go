// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for server, game and pipeline settings.
//
// IMPORTANT: When changing defaults, only modify this file.
// Every other package receives its values from AppConfig.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int
	AllowedOrigins []string // Empty = same-origin and localhost only
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port: 3000,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if origins := getEnvList("ALLOWED_ORIGINS"); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}

	return cfg
}

// =============================================================================
// GAME CONFIGURATION
// =============================================================================

// GameConfig holds match and simulation settings.
// Speeds are in pixels per second.
type GameConfig struct {
	TickRate      int // Simulation ticks per second
	CanvasWidth   int
	CanvasHeight  int
	MaxScore      int
	BallSpeed     float64
	BallMaxSpeed  float64
	PaddleSpeed   float64
	Countdown     time.Duration
	ForfeitGrace  time.Duration // How long a disconnected human keeps their slot
	IdleTimeout   time.Duration // Sessions with no connected human are closed after this
	SweepInterval time.Duration
	AIDifficulty  string // easy | medium | hard
}

// DefaultGame returns the default game configuration.
func DefaultGame() GameConfig {
	return GameConfig{
		TickRate:      60,
		CanvasWidth:   800,
		CanvasHeight:  600,
		MaxScore:      5,
		BallSpeed:     300,
		BallMaxSpeed:  900,
		PaddleSpeed:   420,
		Countdown:     time.Second,
		ForfeitGrace:  10 * time.Second,
		IdleTimeout:   5 * time.Minute,
		SweepInterval: 30 * time.Second,
		AIDifficulty:  "medium",
	}
}

// GameFromEnv returns game configuration with environment variable overrides.
func GameFromEnv() GameConfig {
	cfg := DefaultGame()

	if v := getEnvInt("TICK_RATE", 0); v > 0 {
		cfg.TickRate = v
	}
	if v := getEnvInt("CANVAS_WIDTH", 0); v > 0 {
		cfg.CanvasWidth = v
	}
	if v := getEnvInt("CANVAS_HEIGHT", 0); v > 0 {
		cfg.CanvasHeight = v
	}
	if v := getEnvInt("MAX_SCORE", 0); v > 0 {
		cfg.MaxScore = v
	}
	if v := getEnvFloat("BALL_SPEED", 0); v > 0 {
		cfg.BallSpeed = v
	}
	if v := getEnvFloat("BALL_MAX_SPEED", 0); v > 0 {
		cfg.BallMaxSpeed = v
	}
	if v := getEnvFloat("PADDLE_SPEED", 0); v > 0 {
		cfg.PaddleSpeed = v
	}
	if v := getEnvDuration("COUNTDOWN", -1); v >= 0 {
		cfg.Countdown = v
	}
	if v := getEnvDuration("FORFEIT_GRACE", 0); v > 0 {
		cfg.ForfeitGrace = v
	}
	if v := getEnvDuration("IDLE_TIMEOUT", 0); v > 0 {
		cfg.IdleTimeout = v
	}
	if v := getEnvDuration("SWEEP_INTERVAL", 0); v > 0 {
		cfg.SweepInterval = v
	}
	if v := os.Getenv("AI_DIFFICULTY"); v != "" {
		cfg.AIDifficulty = strings.ToLower(v)
	}

	// Ball max speed below serve speed would make the cap reject every serve.
	if cfg.BallMaxSpeed < cfg.BallSpeed {
		cfg.BallMaxSpeed = cfg.BallSpeed
	}

	return cfg
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// ResourceLimits controls DoS protection.
type ResourceLimits struct {
	MaxSessions       int     // Hard cap on concurrently registered sessions
	MaxWSConnections  int     // Global WebSocket cap
	MaxWSPerIP        int     // Per-IP WebSocket cap
	WSMessagesPerSec  float64 // Inbound message rate per connection
	WSMessageBurst    int
	HTTPRequestsPerIP float64 // REST requests per second per IP
	HTTPBurst         int
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxSessions:       1000,
		MaxWSConnections:  2000,
		MaxWSPerIP:        10,
		WSMessagesPerSec:  60,
		WSMessageBurst:    120,
		HTTPRequestsPerIP: 10,
		HTTPBurst:         20,
	}
}

// LimitsFromEnv returns limits with environment variable overrides.
func LimitsFromEnv() ResourceLimits {
	cfg := DefaultLimits()

	if v := getEnvInt("MAX_SESSIONS", 0); v > 0 {
		cfg.MaxSessions = v
	}
	if v := getEnvInt("MAX_WS_CONNECTIONS", 0); v > 0 {
		cfg.MaxWSConnections = v
	}
	if v := getEnvInt("MAX_WS_PER_IP", 0); v > 0 {
		cfg.MaxWSPerIP = v
	}
	if v := getEnvFloat("WS_MESSAGES_PER_SEC", 0); v > 0 {
		cfg.WSMessagesPerSec = v
		cfg.WSMessageBurst = int(v * 2)
	}

	return cfg
}

// =============================================================================
// STATS PIPELINE
// =============================================================================

// StatsConfig configures where finished matches are reported.
// Empty addresses disable the corresponding backend.
type StatsConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	NATSSubject   string
	QueueSize     int
	EventLogPath  string // Match journal (JSONL); empty disables it
}

// DefaultStats returns the default stats configuration.
func DefaultStats() StatsConfig {
	return StatsConfig{
		NATSSubject:  "pong.matches.finished",
		QueueSize:    256,
		EventLogPath: "data/matches.jsonl",
	}
}

// StatsFromEnv returns stats configuration with environment variable overrides.
func StatsFromEnv() StatsConfig {
	cfg := DefaultStats()

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.NATSURL = os.Getenv("NATS_URL")
	if v := os.Getenv("NATS_SUBJECT"); v != "" {
		cfg.NATSSubject = v
	}
	if v := getEnvInt("STATS_QUEUE_SIZE", 0); v > 0 {
		cfg.QueueSize = v
	}
	if v, ok := os.LookupEnv("EVENT_LOG_PATH"); ok {
		cfg.EventLogPath = v
	}

	return cfg
}

// =============================================================================
// OBSERVABILITY
// =============================================================================

// ObservabilityConfig configures the localhost debug server.
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // must stay on loopback unless AllowExternal
	AllowExternal bool
	BasicAuthUser string // optional
	BasicAuthPass string
}

// DefaultObservability returns safe defaults.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060", // Localhost only
	}
}

// ObservabilityFromEnv returns observability configuration with environment variable overrides.
func ObservabilityFromEnv() ObservabilityConfig {
	cfg := DefaultObservability()

	if v := os.Getenv("DEBUG_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.Enabled = false
	}
	cfg.AllowExternal = os.Getenv("ALLOW_DEBUG_EXTERNAL") == "true"
	cfg.BasicAuthUser = os.Getenv("DEBUG_USER")
	cfg.BasicAuthPass = os.Getenv("DEBUG_PASS")

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server        ServerConfig
	Game          GameConfig
	Limits        ResourceLimits
	Stats         StatsConfig
	Observability ObservabilityConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Server:        ServerFromEnv(),
		Game:          GameFromEnv(),
		Limits:        LimitsFromEnv(),
		Stats:         StatsFromEnv(),
		Observability: ObservabilityFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("1500ms", "10s") or a bare number of seconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultVal
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
