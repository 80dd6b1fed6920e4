package config

import (
	"encoding/json"
	"fmt"
	"os"

	"aroundtheclock/domain/blocker"
	"aroundtheclock/domain/schedule"

	"github.com/joho/godotenv"
)

var Props config

type config struct {
	Interface   string
	Gateway     string
	HistoryPath string
	Source      schedule.SourceConfig
	Blocker     blocker.BlockerConfig
}

func Load(configPath string) error {
	f, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("open config failed. Error: %w", err)
	}
	defer f.Close()
	err = json.NewDecoder(f).Decode(&Props)
	if err != nil {
		return fmt.Errorf("load config failed. Error: %w", err)
	}
	applyEnvOverrides()
	return nil
}

// applyEnvOverrides lets the deployment override the network target
// without editing the config file. A .env alongside the binary is
// loaded first, matching how the service unit ships its environment.
func applyEnvOverrides() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
	if v := os.Getenv("ATC_INTERFACE"); v != "" {
		Props.Interface = v
	}
	if v := os.Getenv("ATC_GATEWAY"); v != "" {
		Props.Gateway = v
	}
	if v := os.Getenv("ATC_HISTORY_PATH"); v != "" {
		Props.HistoryPath = v
	}
}
