package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Default 返回填充默认值的配置
func Default() *EngineConfig {
	cfg := &EngineConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// Load 加载配置文件（对外导出）
// 文件不存在时返回默认配置；解析后补齐默认值并校验
func Load(path string) (*EngineConfig, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 配置内容
func Parse(data []byte) (*EngineConfig, error) {
	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.ApplyDefaults()
	if err := ValidateFrameworkConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
