package app_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/igorvasilek/hoshi/internal/hoshi/app"
	"github.com/igorvasilek/hoshi/internal/hoshi/llm"
	"github.com/igorvasilek/hoshi/internal/hoshi/matrix"
)

func TestConfigFromEnv(t *testing.T) {
	dir := t.TempDir()
	profilePath := filepath.Join(dir, "profile.yaml")
	if err := os.WriteFile(profilePath, []byte("apiVersion: hoshi/v1\nname: Test\nmodel:\n  chat: custom-model\nadmins: [7, 5]\n"), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("LLM_API_KEY", "key")
	t.Setenv("ADMIN_IDS", "5, 9")
	t.Setenv("FEEDBACK_CHAT_ID", "-1001")
	t.Setenv("PROFILE_PATH", profilePath)
	t.Setenv("LLM_MODEL", "")

	cfg, err := app.ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.FeedbackChatID != -1001 {
		t.Errorf("FeedbackChatID = %d", cfg.FeedbackChatID)
	}
	if cfg.LLM.Model != "custom-model" {
		t.Errorf("model should come from the profile, got %q", cfg.LLM.Model)
	}
	seeds := cfg.Seeds()
	if len(seeds) != 3 || seeds[0] != 5 || seeds[1] != 9 || seeds[2] != 7 {
		t.Errorf("Seeds = %v", seeds)
	}
}

func TestConfigFromEnv_BadAdminIDs(t *testing.T) {
	t.Setenv("ADMIN_IDS", "5,abc")
	if _, err := app.ConfigFromEnv(); err == nil {
		t.Fatal("expected error for a malformed admin id")
	}
}

func TestConfig_ValidateReportsAll(t *testing.T) {
	cfg := &app.Config{AuditRoomID: "!room:example.org"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"BOT_TOKEN", "LLM_API_KEY", "ADMIN_IDS", "MATRIX_AUDIT_ROOM"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestConfig_Secrets(t *testing.T) {
	cfg := &app.Config{
		BotToken: "bot-token",
		LLM:      llm.OpenAIConfig{APIKey: "llm-key"},
		Matrix:   matrix.Config{AccessToken: "mx-token"},
	}
	got := strings.Join(cfg.Secrets(), ",")
	if got != "bot-token,llm-key,mx-token" {
		t.Errorf("Secrets = %q", got)
	}
}

func TestConfigFromEnv_MalformedNumbers(t *testing.T) {
	t.Setenv("WORKERS", "lots")
	t.Setenv("RATE_LIMIT_SWEEP_INTERVAL", "10")
	_, err := app.ConfigFromEnv()
	if err == nil {
		t.Fatal("expected error for malformed settings")
	}
	if !strings.Contains(err.Error(), "WORKERS") || !strings.Contains(err.Error(), "RATE_LIMIT_SWEEP_INTERVAL") {
		t.Errorf("both settings should be reported: %v", err)
	}
}
