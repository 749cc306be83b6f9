package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/klipach/mentorchat/contract"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	// ProjectID is discovered from the metadata server when empty.
	ProjectID     string `mapstructure:"project_id"`
	AdminClaim    string `mapstructure:"admin_claim"`
	DirectoryMode string `mapstructure:"directory_mode"`
	AuditLogID    string `mapstructure:"audit_log_id"`
	// AuditDisabled writes audit events to the request log instead of Cloud Logging.
	AuditDisabled bool   `mapstructure:"audit_disabled"`
	Timezone      string `mapstructure:"timezone"`
	Port          string `mapstructure:"port"`
	DatabaseURL   string `mapstructure:"database_url"`

	Location *time.Location `mapstructure:"-"`
}

var defaults = map[string]any{
	"project_id":     "",
	"admin_claim":    contract.DefaultAdminClaim,
	"directory_mode": contract.DirectoryModeIndex,
	"audit_log_id":   contract.DefaultAuditLogID,
	"audit_disabled": false,
	"timezone":       "Asia/Seoul",
	"port":           "8080",
	"database_url":   "",
}

// LoadDotEnv adds the variables of a .env file (or of filenames) to the
// environment without overriding it. A missing file is logged and ignored.
func LoadDotEnv(filenames ...string) {
	if err := godotenv.Load(filenames...); err != nil {
		log.Printf("no .env file: %v", err)
	}
}

// Load reads the configuration from environment variables, e.g. DIRECTORY_MODE.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	switch cfg.DirectoryMode {
	case contract.DirectoryModeIndex, contract.DirectoryModeRescan:
	default:
		return nil, fmt.Errorf("%w: unknown directory mode %q", ErrInvalidConfig, cfg.DirectoryMode)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidConfig, cfg.Timezone, err)
	}
	cfg.Location = loc
	return &cfg, nil
}
