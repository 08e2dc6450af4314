package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/igorvasilek/hoshi/common/environment"
	"github.com/igorvasilek/hoshi/internal/hoshi/llm"
	"github.com/igorvasilek/hoshi/internal/hoshi/matrix"
	"github.com/igorvasilek/hoshi/internal/hoshi/profile"
)

const (
	defaultDatabasePath  = "./hoshi.db"
	defaultLogDir        = "logs"
	defaultSweepInterval = 10 * time.Minute
)

// Config holds application configuration
type Config struct {
	BotToken string
	// TelegramAPIEndpoint points at a self-hosted Bot API server; a fmt
	// pattern taking the token and the method.
	TelegramAPIEndpoint string
	DatabasePath        string
	// AdminIDs seed the admin set on every start, on top of the profile's
	// admins. Seeding never removes anyone.
	AdminIDs []int64
	// FeedbackChatID receives feedback; 0 sends it to every admin.
	FeedbackChatID int64
	LogLevel       string
	LogFormat      string
	LogDir         string
	// HTTPAddr is the TCP address for the optional health/status HTTP server
	// (e.g. ":8080"). When empty the server is disabled.
	HTTPAddr string
	// Workers bounds concurrently handled updates.
	Workers int
	// SweepInterval is how often idle rate-limit entries are evicted.
	SweepInterval time.Duration

	LLM llm.OpenAIConfig

	// Matrix and AuditRoomID enable operator notices in a Matrix room.
	// Without them notices go to the log.
	Matrix      matrix.Config
	AuditRoomID string

	Profile *profile.Profile
}

// ConfigFromEnv reads the configuration from environment variables and
// loads the profile named by PROFILE_PATH.
func ConfigFromEnv() (*Config, error) {
	var env environment.Lookup

	cfg := &Config{
		BotToken:            env.String("BOT_TOKEN", ""),
		TelegramAPIEndpoint: env.String("TELEGRAM_API_ENDPOINT", ""),
		DatabasePath:        env.String("DATABASE_PATH", defaultDatabasePath),
		AdminIDs:            env.Int64List("ADMIN_IDS"),
		FeedbackChatID:      env.Int64("FEEDBACK_CHAT_ID", 0),
		LogLevel:            env.String("LOG_LEVEL", "info"),
		LogFormat:           env.String("LOG_FORMAT", "text"),
		LogDir:              env.String("LOG_DIR", defaultLogDir),
		HTTPAddr:            env.String("HTTP_ADDR", ""),
		Workers:             env.Int("WORKERS", 16),
		SweepInterval:       env.Duration("RATE_LIMIT_SWEEP_INTERVAL", defaultSweepInterval),
		LLM: llm.OpenAIConfig{
			APIKey:  env.String("LLM_API_KEY", ""),
			BaseURL: env.String("LLM_BASE_URL", llm.DefaultBaseURL),
		},
		Matrix: matrix.Config{
			Homeserver:  env.String("MATRIX_HOMESERVER", ""),
			UserID:      env.String("MATRIX_USER_ID", ""),
			AccessToken: env.String("MATRIX_ACCESS_TOKEN", ""),
		},
		AuditRoomID: env.String("MATRIX_AUDIT_ROOM", ""),
	}
	if err := env.Err(); err != nil {
		return nil, err
	}

	prof, err := profile.Load(env.String("PROFILE_PATH", ""))
	if err != nil {
		return nil, err
	}
	cfg.Profile = prof
	cfg.LLM.Model = env.String("LLM_MODEL", prof.Model.Chat)
	cfg.LLM.ImageModel = env.String("IMAGE_MODEL", prof.Model.Image)
	return cfg, nil
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("LLM_API_KEY is required"))
	}
	if len(c.Seeds()) == 0 {
		errs = append(errs, errors.New("ADMIN_IDS (or profile admins) must name at least one admin"))
	}
	if c.AuditRoomID != "" && !c.Matrix.Enabled() {
		errs = append(errs, fmt.Errorf("MATRIX_AUDIT_ROOM is set but MATRIX_HOMESERVER, MATRIX_USER_ID or MATRIX_ACCESS_TOKEN is missing"))
	}
	return errors.Join(errs...)
}

// Seeds returns the admin ids from the environment and the profile.
func (c *Config) Seeds() []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	add := func(ids []int64) {
		for _, id := range ids {
			if _, ok := seen[id]; ok || id <= 0 {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	add(c.AdminIDs)
	if c.Profile != nil {
		add(c.Profile.Admins)
	}
	return out
}

// Secrets lists the credentials that must never reach a user or the log.
func (c *Config) Secrets() []string {
	return []string{c.BotToken, c.LLM.APIKey, c.Matrix.AccessToken}
}
