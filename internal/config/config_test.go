package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"OLLAMACHAT_SERVER_ADDR", "OLLAMACHAT_SERVER_WEB_DIR", "OLLAMACHAT_SERVER_SHUTDOWN_TIMEOUT",
	"OLLAMACHAT_LLM_MODEL", "OLLAMACHAT_LLM_MAX_CONTEXT_TOKENS", "OLLAMACHAT_LLM_ENCODING",
	"OLLAMACHAT_CLIENT_RELAY_URL", "OLLAMACHAT_CLIENT_DB_PATH",
	"OLLAMACHAT_LOG_LEVEL", "OLLAMACHAT_LOG_DEVELOPMENT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":8100" {
		t.Errorf("expected default addr :8100, got %s", cfg.Server.Addr)
	}
	if cfg.Server.WebDir != "web" {
		t.Errorf("expected default web dir, got %s", cfg.Server.WebDir)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected default shutdown timeout, got %s", cfg.Server.ShutdownTimeout)
	}
	if cfg.LLM.Model != "llama3.1:8b" {
		t.Errorf("expected default model, got %s", cfg.LLM.Model)
	}
	if cfg.LLM.MaxContextTokens != 0 {
		t.Errorf("expected unlimited context, got %d", cfg.LLM.MaxContextTokens)
	}
	if cfg.LLM.Encoding != "cl100k_base" {
		t.Errorf("expected default encoding, got %s", cfg.LLM.Encoding)
	}
	if cfg.Client.RelayURL != "http://localhost:8100/api/chat" {
		t.Errorf("expected default relay url, got %s", cfg.Client.RelayURL)
	}
	if cfg.Client.DBPath != "ollamachat.db" {
		t.Errorf("expected default db path, got %s", cfg.Client.DBPath)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Log.Development {
		t.Error("expected production logging by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAMACHAT_SERVER_ADDR", ":9999")
	t.Setenv("OLLAMACHAT_LLM_MODEL", "mistral")
	t.Setenv("OLLAMACHAT_LLM_MAX_CONTEXT_TOKENS", "4096")
	t.Setenv("OLLAMACHAT_CLIENT_RELAY_URL", "https://relay.example/api/chat")
	t.Setenv("OLLAMACHAT_LOG_LEVEL", "debug")
	t.Setenv("OLLAMACHAT_SERVER_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":9999" {
		t.Errorf("expected addr :9999, got %s", cfg.Server.Addr)
	}
	if cfg.LLM.Model != "mistral" {
		t.Errorf("expected model mistral, got %s", cfg.LLM.Model)
	}
	if cfg.LLM.MaxContextTokens != 4096 {
		t.Errorf("expected 4096 tokens, got %d", cfg.LLM.MaxContextTokens)
	}
	if cfg.Client.RelayURL != "https://relay.example/api/chat" {
		t.Errorf("expected custom relay url, got %s", cfg.Client.RelayURL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug log level, got %s", cfg.Log.Level)
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("expected 3s shutdown timeout, got %s", cfg.Server.ShutdownTimeout)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "ollamachat.yaml")
	content := "server:\n  addr: \":7000\"\nllm:\n  model: phi3\nclient:\n  db_path: /tmp/chat.db\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("expected addr from file, got %s", cfg.Server.Addr)
	}
	if cfg.LLM.Model != "phi3" {
		t.Errorf("expected model from file, got %s", cfg.LLM.Model)
	}
	if cfg.Client.DBPath != "/tmp/chat.db" {
		t.Errorf("expected db path from file, got %s", cfg.Client.DBPath)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected untouched default, got %s", cfg.Log.Level)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "ollamachat.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  model: phi3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OLLAMACHAT_LLM_MODEL", "gemma")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Model != "gemma" {
		t.Errorf("expected env to win, got %s", cfg.LLM.Model)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoad_NegativeBudget(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAMACHAT_LLM_MAX_CONTEXT_TOKENS", "-1")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for negative token budget")
	}
}
