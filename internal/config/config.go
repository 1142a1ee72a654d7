// Package config holds the explicit kiosk settings structure.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config enumerates every runtime setting of the kiosk daemon. All fields
// are wired from flags in cmd/kiosk; validation happens once at startup.
type Config struct {
	// Remote attendance service.
	Endpoint     string `validate:"required,url"`
	SOAPUsername string `validate:"required"`
	SOAPPassword string `validate:"required"`
	ClientID     int    `validate:"required,gt=0"`

	// Remote call behavior.
	Timeout time.Duration `validate:"required,min=1s,max=60s"`

	// Offline queue and drain.
	DSN               string        `validate:"required"`
	MaxRetryAttempts  int           `validate:"required,gte=1,lte=100"`
	BackoffBase       time.Duration `validate:"required,min=1s"`
	BackoffCap        time.Duration `validate:"required,gtefield=BackoffBase"`
	SyncInterval      time.Duration `validate:"required,min=5s"`
	RetentionDays     int           `validate:"required,gte=1"`
	MaxOfflineRecords int           `validate:"required,gte=100"`

	// Local API surface.
	ListenAddr string `validate:"required"`

	// Admin access.
	AdminUsername     string        `validate:"required"`
	AdminPasswordHash string        `validate:"required"`
	JWTKey            string        `validate:"required,min=16"`
	TokenTTL          time.Duration `validate:"required,min=1m"`

	// Camera collaborator; empty disables photo capture.
	PhotoDir string
}

// Validate checks the configuration and returns a descriptive error for the
// first violated constraint.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Retention returns the record retention window as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
