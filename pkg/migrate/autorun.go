package migrate

import (
	"context"
	"fmt"

	"github.com/fastrepair/fastrepair-backend/pkg/config"
	"github.com/fastrepair/fastrepair-backend/pkg/db"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
)

// MaybeRun applies the embedded migrations on boot. SQLite workstation
// installs always migrate; Postgres only in dev with the feature flag on.
func MaybeRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	useSQLite := cfg.FeatureFlags.UseSQLite
	if !useSQLite && (!cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate) {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})
	logg.Info(ctx, "running Goose migrations (auto-run)")

	applied, err := Apply(ctx, sqlDB, cfg.DB.Driver)
	if err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(logg.WithField(ctx, "applied", applied), "Goose migrations completed")
	return nil
}
