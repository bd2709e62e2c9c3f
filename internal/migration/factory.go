package migration

import (
	"fmt"
	"strings"

	appconfig "github.com/BaSui01/clipforge/config"
)

// NewMigratorFromConfig creates a new migrator from application configuration
func NewMigratorFromConfig(cfg *appconfig.Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	return NewMigratorFromDatabaseConfig(cfg.Database)
}

// NewMigratorFromDatabaseConfig creates a new migrator from database configuration
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig) (*DefaultMigrator, error) {
	// Parse database type (Driver field in config)
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	// An explicit URL takes precedence over individual connection fields.
	if dbCfg.URL != "" {
		return NewMigrator(&Config{
			DatabaseType: dbType,
			DatabaseURL:  normalizeURL(dbType, dbCfg.URL),
			TableName:    "schema_migrations",
		})
	}

	// Build database URL from components
	var dbURL string
	switch dbType {
	case DatabaseTypePostgres:
		dbURL = BuildDatabaseURL(
			dbType,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.Name,
			dbCfg.User,
			dbCfg.Password,
			dbCfg.SSLMode,
		)
	case DatabaseTypeMySQL:
		dbURL = BuildDatabaseURL(
			dbType,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.Name,
			dbCfg.User,
			dbCfg.Password,
			"",
		)
	case DatabaseTypeSQLite:
		// For SQLite, the Name field contains the file path
		dbURL = BuildDatabaseURL(dbType, "", 0, dbCfg.Name, "", "", "")
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}

	// Create migrator config
	migCfg := &Config{
		DatabaseType: dbType,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	}

	return NewMigrator(migCfg)
}

// NewMigratorFromURL creates a new migrator from a database URL
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}

	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  normalizeURL(dt, dbURL),
		TableName:    "schema_migrations",
	})
}

// normalizeURL fixes up bare SQLite file paths so they work with database/sql.
// DATABASE_URL for SQLite is often just a path like ./clipforge.db.
func normalizeURL(dbType DatabaseType, url string) string {
	if dbType != DatabaseTypeSQLite {
		return url
	}
	if strings.HasPrefix(url, "file:") {
		return url
	}
	return fmt.Sprintf("file:%s?mode=rwc&_foreign_keys=on", url)
}
