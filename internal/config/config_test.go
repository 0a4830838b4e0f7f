package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8780 {
		t.Errorf("port = %d, want 8780", cfg.Server.Port)
	}
	if cfg.Engine.MergeThreshold != 0.8 {
		t.Errorf("merge threshold = %f, want 0.8", cfg.Engine.MergeThreshold)
	}
	if cfg.Engine.ChunkMaxTokens != 500 || cfg.Engine.ChunkOverlap != 50 {
		t.Errorf("chunk params = %d/%d, want 500/50", cfg.Engine.ChunkMaxTokens, cfg.Engine.ChunkOverlap)
	}
	if cfg.Engine.SubChunkLimit != 12000 {
		t.Errorf("sub chunk limit = %d, want 12000", cfg.Engine.SubChunkLimit)
	}
	if cfg.LLM.BaseURL == "" {
		t.Error("llm base url default missing")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 9000\nengine:\n  merge_threshold: 0.75\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Engine.MergeThreshold != 0.75 {
		t.Errorf("merge threshold = %f, want 0.75", cfg.Engine.MergeThreshold)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OFFERGEN_SERVER_PORT", "9100")
	t.Setenv("OFFERGEN_LLM_CHAT_MODEL", "llama3.1:8b")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.LLM.ChatModel != "llama3.1:8b" {
		t.Errorf("chat model = %q", cfg.LLM.ChatModel)
	}
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("OFFERGEN_ENGINE_MERGE_THRESHOLD", "1.5")
	if _, err := Load(""); err == nil {
		t.Error("expected validation error for threshold out of range")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
