package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the complete application configuration
type Config struct {
	Gateway *GatewayConfig
	Worker  *WorkerConfig
}

// LoadConfig loads all configuration files from a directory
func LoadConfig(configDir string) (*Config, error) {
	absDir, err := filepath.Abs(configDir)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config directory: %w", err)
	}

	config := &Config{}

	// Load gateway config
	gatewayPath := filepath.Join(absDir, "gateway.defaults.yml")
	if _, err := os.Stat(gatewayPath); err == nil {
		gatewayCfg, err := LoadGatewayConfig(gatewayPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load gateway config: %w", err)
		}
		config.Gateway = gatewayCfg
	}

	// Load worker config
	workerPath := filepath.Join(absDir, "worker.defaults.yml")
	if _, err := os.Stat(workerPath); err == nil {
		workerCfg, err := LoadWorkerConfig(workerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load worker config: %w", err)
		}
		config.Worker = workerCfg
	}

	return config, nil
}
