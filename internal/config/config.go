package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "OLLAMACHAT"

type Config struct {
	Server ServerConfig
	LLM    LLMConfig
	Client ClientConfig
	Log    LogConfig
}

type ServerConfig struct {
	Addr            string
	WebDir          string
	ShutdownTimeout time.Duration
}

type LLMConfig struct {
	Model            string
	MaxContextTokens int
	Encoding         string
}

type ClientConfig struct {
	RelayURL string
	DBPath   string
}

type LogConfig struct {
	Level       string
	Development bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8100")
	v.SetDefault("server.web_dir", "web")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("llm.model", "llama3.1:8b")
	v.SetDefault("llm.max_context_tokens", 0)
	v.SetDefault("llm.encoding", "cl100k_base")
	v.SetDefault("client.relay_url", "http://localhost:8100/api/chat")
	v.SetDefault("client.db_path", "ollamachat.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads defaults, then the optional config file, then OLLAMACHAT_*
// environment variables (server.addr -> OLLAMACHAT_SERVER_ADDR).
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			WebDir:          v.GetString("server.web_dir"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		LLM: LLMConfig{
			Model:            v.GetString("llm.model"),
			MaxContextTokens: v.GetInt("llm.max_context_tokens"),
			Encoding:         v.GetString("llm.encoding"),
		},
		Client: ClientConfig{
			RelayURL: v.GetString("client.relay_url"),
			DBPath:   v.GetString("client.db_path"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
	}

	if cfg.LLM.MaxContextTokens < 0 {
		return Config{}, fmt.Errorf("llm.max_context_tokens must not be negative, got %d", cfg.LLM.MaxContextTokens)
	}
	return cfg, nil
}
