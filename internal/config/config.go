package config // package config loads application configuration from environment variables

import (
	"os"      // os provides access to environment variables
	"time"    // time expresses the screening timings

	"github.com/joho/godotenv" // godotenv loads an optional .env file

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
	"github.com/iliyamo/cinema-screening-room/internal/screening"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Database credentials are only required for the
// MySQL driver; the SQLite driver needs just a file path.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBDriver   string // "mysql" or "sqlite"
	DBUser     string // database username
	DBPass     string // database password (optional)
	DBHost     string // database host address
	DBPort     string // database port number
	DBName     string // database name
	SQLitePath string // database file for the sqlite driver

	JWTSecret         string // secret used to sign admin JWTs
	AdminPasswordHash string // bcrypt hash of the admin password
	AccessTTLMin      int    // access token time‑to‑live in minutes

	Screening ScreeningConfig
	Media     MediaConfig

	RabbitURL    string // broker for status events (empty disables publishing)
	AuditLogPath string // where the status consumer appends audit lines
}

// ScreeningConfig holds the lifecycle timings of the screening engine.
type ScreeningConfig struct {
	VestibuleOpen   time.Duration // VESTIBULE_OPEN_MINUTES
	PostShowGrace   time.Duration // POST_SHOW_CLOSE_MINUTES
	IdleGrace       time.Duration // EMPTY_ROOM_CLOSE_MINUTES
	MonitorInterval time.Duration // MONITOR_INTERVAL
	Tick            time.Duration // PROJECTIONIST_TICK
	Countdown       time.Duration // COUNTDOWN
	StoreTimeout    time.Duration // STORE_TIMEOUT
	StoreRetries    int           // STORE_RETRIES
	RetiredTTL      time.Duration // RETIRED_TTL
	ShutdownTimeout time.Duration // SHUTDOWN_TIMEOUT
}

// MediaConfig locates movies, posters and the fixed playlist clips.
type MediaConfig struct {
	MediaDir     string        // directory scanned for movie files
	PosterDir    string        // directory scanned for posters
	StaticPrefix string        // playlist path prefix of feature files
	IntroVideo   string        // playlist source of the intro clip
	OutroVideo   string        // playlist source of the outro clip
	FFprobeBin   string        // ffprobe binary
	ProbeTimeout time.Duration // per-probe timeout
}

// Load reads an optional .env file and then configuration values from
// environment variables.  Required variables are enforced by must() and
// missing values cause the program to exit with a fatal log message.
func Load() Config {
	_ = godotenv.Load() // a missing .env is fine; real env vars win

	cfg := Config{
		Env:  must("APP_ENV"),  // environment (dev/test/prod)
		Port: must("APP_PORT"), // port to bind the HTTP server

		DBDriver:   envStr("DB_DRIVER", "mysql"),
		SQLitePath: envStr("SQLITE_PATH", "screening.db"),

		JWTSecret:         must("JWT_SECRET"),                    // secret used for signing JWTs
		AdminPasswordHash: must("ADMIN_PASSWORD_HASH"),           // bcrypt hash checked at login
		AccessTTLMin:      envInt("ACCESS_TOKEN_TTL_MIN", 12*60), // TTL for access tokens in minutes

		Screening: LoadScreeningConfig(),
		Media:     LoadMediaConfig(),

		RabbitURL:    os.Getenv("RABBITMQ_URL"),
		AuditLogPath: envStr("AUDIT_LOG_PATH", "logs/screening.log"),
	}
	if cfg.DBDriver == "mysql" {
		cfg.DBUser = must("DB_USER")      // database user
		cfg.DBPass = os.Getenv("DB_PASS") // database password (empty allowed)
		cfg.DBHost = must("DB_HOST")      // database host
		cfg.DBPort = must("DB_PORT")      // database port
		cfg.DBName = must("DB_NAME")      // database name
	}
	return cfg
}

// LoadScreeningConfig reads the engine timings.  The minute-based values
// match the operator-facing knobs; the rest take Go duration strings.
func LoadScreeningConfig() ScreeningConfig {
	return ScreeningConfig{
		VestibuleOpen:   time.Duration(envInt("VESTIBULE_OPEN_MINUTES", 15)) * time.Minute,
		PostShowGrace:   time.Duration(envInt("POST_SHOW_CLOSE_MINUTES", 5)) * time.Minute,
		IdleGrace:       time.Duration(envInt("EMPTY_ROOM_CLOSE_MINUTES", 10)) * time.Minute,
		MonitorInterval: envDur("MONITOR_INTERVAL", 5*time.Second),
		Tick:            envDur("PROJECTIONIST_TICK", time.Second),
		Countdown:       envDur("COUNTDOWN", 5*time.Second),
		StoreTimeout:    envDur("STORE_TIMEOUT", 3*time.Second),
		StoreRetries:    envInt("STORE_RETRIES", 5),
		RetiredTTL:      envDur("RETIRED_TTL", time.Hour),
		ShutdownTimeout: envDur("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// LoadMediaConfig reads the media locations.
func LoadMediaConfig() MediaConfig {
	return MediaConfig{
		MediaDir:     envStr("MEDIA_DIR", "static/videos"),
		PosterDir:    envStr("POSTER_DIR", "static/posters"),
		StaticPrefix: envStr("MEDIA_STATIC_PREFIX", "videos"),
		IntroVideo:   envStr("INTRO_VIDEO", "assets/intro.mp4"),
		OutroVideo:   envStr("OUTRO_VIDEO", "assets/outro.mp4"),
		FFprobeBin:   envStr("FFPROBE_BIN", "ffprobe"),
		ProbeTimeout: envDur("FFPROBE_TIMEOUT", 30*time.Second),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logger := xlog.WithComponent("config")
		logger.Fatal().Str("key", key).Msg("missing required env var")
	}
	return v
}

// Engine converts the timings into the engine configuration.  Retry backoff
// keeps the engine default.
func (c ScreeningConfig) Engine() screening.Config {
	cfg := screening.DefaultConfig()
	cfg.VestibuleOpen = c.VestibuleOpen
	cfg.PostShowGrace = c.PostShowGrace
	cfg.IdleGrace = c.IdleGrace
	cfg.MonitorInterval = c.MonitorInterval
	cfg.Tick = c.Tick
	cfg.Countdown = c.Countdown
	cfg.StoreTimeout = c.StoreTimeout
	cfg.StoreRetries = c.StoreRetries
	cfg.RetiredTTL = c.RetiredTTL
	return cfg
}
