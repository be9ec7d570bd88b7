// Package portal parses portal command flags and launches the portal runtime.
package portal

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/apacbi/budgetportal/internal/platform/cmd"
	portalserver "github.com/apacbi/budgetportal/internal/services/portal/app"
	"github.com/apacbi/budgetportal/internal/services/portal/publish"
	"github.com/apacbi/budgetportal/internal/services/portal/publish/powerbi"
)

// Config holds portal command configuration.
type Config struct {
	Port          int           `env:"BUDGET_PORTAL_PORT" envDefault:"8080"`
	DBPath        string        `env:"BUDGET_PORTAL_DB_PATH" envDefault:"data/portal.db"`
	SessionSecret string        `env:"BUDGET_PORTAL_SESSION_SECRET"`
	SessionTTL    time.Duration `env:"BUDGET_PORTAL_SESSION_TTL" envDefault:"8h"`
	HydrateOnMiss bool          `env:"BUDGET_PORTAL_HYDRATE_ON_MISS" envDefault:"false"`

	PowerBIClientID     string `env:"BUDGET_PORTAL_POWERBI_CLIENT_ID"`
	PowerBIClientSecret string `env:"BUDGET_PORTAL_POWERBI_CLIENT_SECRET"`
	PowerBITenantID     string `env:"BUDGET_PORTAL_POWERBI_TENANT_ID"`
	PowerBIWorkspaceID  string `env:"BUDGET_PORTAL_POWERBI_WORKSPACE_ID"`
	PowerBIDatasetID    string `env:"BUDGET_PORTAL_POWERBI_DATASET_ID"`
	PowerBITable        string `env:"BUDGET_PORTAL_POWERBI_TABLE"`

	PublishWorkers   int           `env:"BUDGET_PORTAL_PUBLISH_WORKERS" envDefault:"2"`
	PublishQueueSize int           `env:"BUDGET_PORTAL_PUBLISH_QUEUE_SIZE" envDefault:"64"`
	MaxAttempts      int           `env:"BUDGET_PORTAL_PUBLISH_MAX_ATTEMPTS" envDefault:"5"`
	RetryBackoff     time.Duration `env:"BUDGET_PORTAL_PUBLISH_RETRY_BACKOFF" envDefault:"2s"`
	RetryMaxDelay    time.Duration `env:"BUDGET_PORTAL_PUBLISH_RETRY_MAX_DELAY" envDefault:"1m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The portal HTTP server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The portal SQLite database path")
	fs.StringVar(&cfg.SessionSecret, "session-secret", cfg.SessionSecret, "Session token signing secret")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "Session token lifetime")
	fs.BoolVar(&cfg.HydrateOnMiss, "hydrate-on-miss", cfg.HydrateOnMiss, "Seed empty partitions from the BI dataset")
	fs.IntVar(&cfg.PublishWorkers, "publish-workers", cfg.PublishWorkers, "Publish worker count")
	fs.IntVar(&cfg.PublishQueueSize, "publish-queue-size", cfg.PublishQueueSize, "Publish queue capacity")
	fs.IntVar(&cfg.MaxAttempts, "publish-max-attempts", cfg.MaxAttempts, "Maximum publish attempts per batch")
	fs.DurationVar(&cfg.RetryBackoff, "publish-retry-backoff", cfg.RetryBackoff, "Base publish retry delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "publish-retry-max-delay", cfg.RetryMaxDelay, "Maximum publish retry delay")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the portal server.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePortal, func(context.Context) error {
		return portalserver.Run(ctx, portalserver.RuntimeConfig{
			Port:          cfg.Port,
			DBPath:        cfg.DBPath,
			SessionSecret: cfg.SessionSecret,
			SessionTTL:    cfg.SessionTTL,
			HydrateOnMiss: cfg.HydrateOnMiss,
			PowerBI: powerbi.Config{
				ClientID:        cfg.PowerBIClientID,
				ClientSecret:    cfg.PowerBIClientSecret,
				TenantID:        cfg.PowerBITenantID,
				WorkspaceID:     cfg.PowerBIWorkspaceID,
				DatasetID:       cfg.PowerBIDatasetID,
				SubmissionTable: cfg.PowerBITable,
			},
			Publish: publish.Config{
				Workers:       cfg.PublishWorkers,
				QueueSize:     cfg.PublishQueueSize,
				MaxAttempts:   cfg.MaxAttempts,
				RetryBackoff:  cfg.RetryBackoff,
				RetryMaxDelay: cfg.RetryMaxDelay,
			},
		})
	})
}
