package main

import (
	"context"
	"os"

	"github.com/desertthunder/musictime/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase writes a config file when missing, then initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if r.configPath != "" {
		if _, err := os.Stat(r.configPath); err != nil {
			r.logger.Info("config file not found, creating from template", "path", r.configPath)
			if err := shared.CreateConfigFile(r.configPath); err != nil {
				r.logger.Warn("failed to create config file, using defaults", "error", err)
			} else {
				r.logger.Info("config file created", "path", r.configPath)
			}
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	db, err := r.openDatabase()
	if err != nil {
		return err
	}

	versions, err := shared.AppliedVersions(db)
	if err != nil {
		return err
	}

	schema := 0
	if len(versions) > 0 {
		schema = versions[len(versions)-1]
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s (schema version %d)\n", r.config.Database.Path, schema)
}
