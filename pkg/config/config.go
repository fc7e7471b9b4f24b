// Package config 读取 YAML 配置文件并提供默认值
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"microdb/pkg/buffer"
	"microdb/pkg/logger"
)

const DefaultDataDir = "./microdb_data"

type Config struct {
	DataDir     string        `yaml:"data_dir"`
	BufferPages int           `yaml:"buffer_pages"`
	Log         logger.Config `yaml:"log"`
	MetricsAddr string        `yaml:"metrics_addr"` // 为空时不启动 /metrics
	ListenAddr  string        `yaml:"listen_addr"`  // 为空时进入交互模式
	HistoryFile string        `yaml:"history_file"`
}

func Default() Config {
	return Config{
		DataDir:     DefaultDataDir,
		BufferPages: buffer.DefaultPoolSize,
		Log: logger.Config{
			Level:      "info",
			Format:     "console",
			OutputFile: "stderr",
		},
	}
}

// Load 在默认值之上覆盖文件中的字段；path 为空时只返回默认值
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config file %s not found: %w", path, err)
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if c.BufferPages < 1 {
		return fmt.Errorf("buffer_pages must be at least 1, got %d", c.BufferPages)
	}
	return nil
}
