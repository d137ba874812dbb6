package config

import (
	"os"
	"path/filepath"
)

const configTemplate = `[scan]
source = "mock"
scan_interval_seconds = 120
max_concurrent_symbols = 8
min_matching_timeframes = 2
bos_threshold_pct = 0.3
choch_threshold_pct = 0.5
min_structure_distance_pct = 1.0
structure_lock_bars = 5
min_fvg_size_pct = 0.2
fvg_prune_bars = 50
proximity_near_pct = 2
proximity_far_pct = 3

[server]
listen_addr = ":8080"
metrics_enabled = true

[symbols]
watchlist = ["NIFTY50", "BANKNIFTY"]
`

const credentialsTemplate = `[zerodha]
api_key = ""
api_secret = ""
access_token = ""
`

// writeTemplateConfig writes a starter config.toml so a fresh install has
// something to edit; the first run then proceeds on built-in defaults.
func writeTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.WriteFile(path, []byte(configTemplate), 0644)
	}
	return nil
}

func writeTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(configDir, "credentials.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.WriteFile(path, []byte(credentialsTemplate), 0600)
	}
	return nil
}
