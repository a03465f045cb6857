package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/financekit/internal/flagx"
	"github.com/dmitrijs2005/financekit/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Intervals
// may be strings like "3s" or integer nanoseconds. Absent fields keep the
// current value.
type JsonConfig struct {
	ServerBaseURL       *string         `json:"server_url"`
	APIPrefix           *string         `json:"api_prefix"`
	DeviceID            *string         `json:"device_id"`
	DataDir             *string         `json:"data_dir"`
	LogLevel            *string         `json:"log_level"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	RefreshSkew         *timex.Duration `json:"refresh_skew"`
	GrantTTL            *timex.Duration `json:"grant_ttl"`
	GrantNotBeforeSkew  *timex.Duration `json:"grant_nbf_skew"`
	UndoWindow          *timex.Duration `json:"undo_window"`
	DEKSize             *int            `json:"dek_size"`
}

// parseJSON overlays Config with values from the file named by -c/-config.
// No flag means no file. The secure store secret is never read from JSON.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return err
	}

	setString(&cfg.ServerBaseURL, jc.ServerBaseURL)
	setString(&cfg.APIPrefix, jc.APIPrefix)
	setString(&cfg.DeviceID, jc.DeviceID)
	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.LogLevel, jc.LogLevel)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setDuration(&cfg.RefreshSkew, jc.RefreshSkew)
	setDuration(&cfg.GrantTTL, jc.GrantTTL)
	setDuration(&cfg.GrantNotBeforeSkew, jc.GrantNotBeforeSkew)
	setDuration(&cfg.UndoWindow, jc.UndoWindow)
	if jc.DEKSize != nil {
		cfg.DEKSize = *jc.DEKSize
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
