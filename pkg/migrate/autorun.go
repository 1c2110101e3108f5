package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/backoffice/pkg/config"
	"github.com/angelmondragon/backoffice/pkg/db"
	"github.com/angelmondragon/backoffice/pkg/logger"
)

// MaybeRunDev brings a development database up to date on boot when
// BACKOFFICE_AUTO_MIGRATE is set. Other environments migrate through gatectl.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	m, err := New(sqlDB, DialectFor(cfg.DB), Embedded(), logg)
	if err != nil {
		return err
	}
	return m.Up(logg.WithField(ctx, "trigger", "dev_autorun"))
}
