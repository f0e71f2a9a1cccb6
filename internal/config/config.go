package config

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string
	LogLevel string

	DBDriver string
	DBDSN    string
	ExamsDir string // exam files loaded at startup, optional

	AuthHMACSecret string
	AuthDevLogin   bool // username==password logins when no user row exists

	CORSOrigins []string

	Sandbox SandboxConfig
	Grading GradingConfig
}

type SandboxConfig struct {
	URL           string
	Token         string
	Timeout       time.Duration
	LanguagesFile string // optional YAML merged over the built-in table
}

type GradingConfig struct {
	MaxConcurrency int
	TestTimeout    time.Duration
	MaxRetries     int
	PointsPolicy   string        // binary|weighted
	SubmitTimeout  time.Duration // whole grading run of one submit
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("MODE", string(ModeOffline))
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("EXAMS_DIR", "")
	v.SetDefault("AUTH_HMAC_SECRET", "supersecret-dev-key")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("SANDBOX_URL", "http://localhost:2358")
	v.SetDefault("SANDBOX_TOKEN", "")
	v.SetDefault("SANDBOX_TIMEOUT", "30s")
	v.SetDefault("SANDBOX_LANGUAGES_FILE", "")
	v.SetDefault("GRADING_MAX_CONCURRENCY", 4)
	v.SetDefault("GRADING_TEST_TIMEOUT", "10s")
	v.SetDefault("GRADING_MAX_RETRIES", 2)
	v.SetDefault("GRADING_POINTS_POLICY", "binary")
	v.SetDefault("GRADING_SUBMIT_TIMEOUT", "5m")
}

// Load reads an optional .env in the working directory, then the
// environment. Environment values win.
func Load() Config {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn().Err(err).Msg("reading .env")
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) Config {
	mode := Mode(strings.ToLower(v.GetString("MODE")))
	if mode != ModeOnline {
		mode = ModeOffline
	}
	return Config{
		Mode:           mode,
		HTTPAddr:       v.GetString("HTTP_ADDR"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		DBDriver:       v.GetString("DB_DRIVER"),
		DBDSN:          v.GetString("DB_DSN"),
		ExamsDir:       v.GetString("EXAMS_DIR"),
		AuthHMACSecret: v.GetString("AUTH_HMAC_SECRET"),
		AuthDevLogin:   boolOr(v, "AUTH_DEV_LOGIN", mode == ModeOffline),
		CORSOrigins:    csv(v.GetString("CORS_ORIGINS")),
		Sandbox: SandboxConfig{
			URL:           v.GetString("SANDBOX_URL"),
			Token:         v.GetString("SANDBOX_TOKEN"),
			Timeout:       v.GetDuration("SANDBOX_TIMEOUT"),
			LanguagesFile: v.GetString("SANDBOX_LANGUAGES_FILE"),
		},
		Grading: GradingConfig{
			MaxConcurrency: v.GetInt("GRADING_MAX_CONCURRENCY"),
			TestTimeout:    v.GetDuration("GRADING_TEST_TIMEOUT"),
			MaxRetries:     v.GetInt("GRADING_MAX_RETRIES"),
			PointsPolicy:   strings.ToLower(v.GetString("GRADING_POINTS_POLICY")),
			SubmitTimeout:  v.GetDuration("GRADING_SUBMIT_TIMEOUT"),
		},
	}
}

func boolOr(v *viper.Viper, key string, def bool) bool {
	if !v.IsSet(key) || strings.TrimSpace(v.GetString(key)) == "" {
		return def
	}
	return v.GetBool(key)
}

func csv(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SetupLogging configures the global zerolog logger: human readable on a
// terminal in offline mode, JSON lines online.
func (c Config) SetupLogging() zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var l zerolog.Logger
	if c.Mode == ModeOffline {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		l = zerolog.New(os.Stderr)
	}
	l = l.With().Timestamp().Str("service", "mindengage-assess").Logger()
	log.Logger = l
	return l
}
