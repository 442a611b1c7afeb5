package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const jsonConfig = `{
  "telegram": {"token": "123:abc", "operator_user_ids": [7, 8]},
  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
  "display_timezone": "Asia/Kolkata",
  "dispatch": {"interval": "30s"},
  "storage": {"path": "/tmp/bot.db"},
  "destinations": [
    {"id": "main", "name": "Main Channel", "chat_id": -100200}
  ]
}`

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", jsonConfig))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OperatorUserIDs) != 2 || cfg.Telegram.OperatorUserIDs[0] != 7 {
		t.Fatalf("operators = %v", cfg.Telegram.OperatorUserIDs)
	}
	if cfg.DisplayTimezone != "Asia/Kolkata" {
		t.Fatalf("display_timezone = %q", cfg.DisplayTimezone)
	}
	if len(cfg.Destinations) != 1 || cfg.Destinations[0].ChatID != -100200 {
		t.Fatalf("destinations = %+v", cfg.Destinations)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	body := `
telegram:
  token: "123:abc"
  operator_user_ids: [7]
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
dispatch:
  interval: 1m
storage:
  path: /tmp/bot.db
destinations:
  - id: main
    name: Main Channel
    chat_id: -100200
`
	m := NewManager(writeConfig(t, "config.yaml", body))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Dispatch.Interval != "1m" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Destinations[0].ID != "main" {
		t.Fatalf("destinations = %+v", cfg.Destinations)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{"telegram": {"token": "x"}, "bogus": 1}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{"telegram": {"token": "x"}} {"again": true}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestDurationFields(t *testing.T) {
	t.Parallel()
	d, err := Duration("dispatch.interval", " 90s ")
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if d != 90*time.Second {
		t.Fatalf("d = %v", d)
	}

	if _, err := Duration("x", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
	if _, err := Duration("x", "soon"); err == nil {
		t.Fatal("expected error for junk duration")
	}

	d, err = DurationOr("x", "", time.Minute)
	if err != nil || d != time.Minute {
		t.Fatalf("default = %v, %v", d, err)
	}
	d, err = DurationOr("x", "30s", time.Minute)
	if err != nil || d != 30*time.Second {
		t.Fatalf("explicit = %v, %v", d, err)
	}
}

func TestLoadAndGet(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", jsonConfig))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}
