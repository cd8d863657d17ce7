package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "TELEGRAM_BOT_TOKEN=abc\nDB_URL=postgres://x\nSETTLEMENT_BASE_URL=https://agent.example\nADMIN_CHAT_IDS=1, 22 ,333\nSTATE_TTL=1h\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if len(cfg.AdminChatIDs) != 3 || cfg.AdminChatIDs[2] != 333 {
		t.Errorf("AdminChatIDs = %v, want [1 22 333]", cfg.AdminChatIDs)
	}
	if cfg.StateTTL != time.Hour {
		t.Errorf("StateTTL = %v, want 1h", cfg.StateTTL)
	}
	if cfg.TenantID != "default" || cfg.ReferralMaturity != 240*time.Hour {
		t.Errorf("defaults not applied: tenant %q maturity %v", cfg.TenantID, cfg.ReferralMaturity)
	}
}

func TestLoadConfigWithoutFile(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), ".env"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TelegramBotToken != "from-env" {
		t.Errorf("token = %q, want from-env", cfg.TelegramBotToken)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a config without DB_URL")
	}
}

func TestParseChatIDs(t *testing.T) {
	if _, err := parseChatIDs("1,abc"); err == nil {
		t.Error("parseChatIDs accepted a non-numeric id")
	}
	ids, err := parseChatIDs("")
	if err != nil || len(ids) != 0 {
		t.Errorf("empty input = %v, %v", ids, err)
	}
}
