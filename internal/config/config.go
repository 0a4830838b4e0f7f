// Package config loads runtime configuration from defaults, an optional YAML
// file, and OFFERGEN_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Storage StorageConfig `mapstructure:"storage"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Host  string `mapstructure:"host"`
	Port  int    `mapstructure:"port"`
	Token string `mapstructure:"token"`
}

type LLMConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	ChatModel  string `mapstructure:"chat_model"`
	EmbedModel string `mapstructure:"embed_model"`
}

type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// EngineConfig holds the tunable engine constants.
type EngineConfig struct {
	MergeThreshold float64 `mapstructure:"merge_threshold"`
	TopK           int     `mapstructure:"top_k"`
	ChunkMaxTokens int     `mapstructure:"chunk_max_tokens"`
	ChunkOverlap   int     `mapstructure:"chunk_overlap"`
	SubChunkLimit  int     `mapstructure:"sub_chunk_limit"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8780)
	v.SetDefault("server.token", "")
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.chat_model", "qwen3:8b")
	v.SetDefault("llm.embed_model", "nomic-embed-text")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("engine.merge_threshold", 0.8)
	v.SetDefault("engine.top_k", 5)
	v.SetDefault("engine.chunk_max_tokens", 500)
	v.SetDefault("engine.chunk_overlap", 50)
	v.SetDefault("engine.sub_chunk_limit", 12000)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("OFFERGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Engine.MergeThreshold <= 0 || c.Engine.MergeThreshold >= 1 {
		return fmt.Errorf("merge threshold %f out of range (0, 1)", c.Engine.MergeThreshold)
	}
	if c.Engine.TopK <= 0 {
		return errors.New("top_k must be positive")
	}
	if c.LLM.BaseURL == "" {
		return errors.New("llm base_url is required")
	}
	return nil
}
