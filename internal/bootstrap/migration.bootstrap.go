package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/guregu/null/v6"
	"github.com/krobus00/quote-service/internal/config"
	"github.com/krobus00/quote-service/internal/util"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const migrationBaseDir = "migration/postgresql"

var (
	errUnknownMigrationAction   = errors.New("invalid command")
	errUnknownMigrationDatabase = errors.New("database is not configured")
)

var migrationActions = []string{"create", "up", "up-by-one", "up-to", "down", "down-to", "status", "reset"}

func StartMigrate(cmd *cobra.Command, args []string) {
	databaseName, _ := cmd.Flags().GetString("databaseName")
	actionType, _ := cmd.Flags().GetString("action")
	migrationName, _ := cmd.Flags().GetString("name")
	version, _ := cmd.Flags().GetInt64("version")

	dsn, migrationDir, err := resolveMigrationTarget(config.Env, databaseName, actionType)
	util.ContinueOrFatal(err)

	db, err := sql.Open("postgres", dsn)
	util.ContinueOrFatal(err)
	defer db.Close()

	err = goose.SetDialect("postgres")
	util.ContinueOrFatal(err)

	logrus.WithFields(logrus.Fields{
		"database": databaseName,
		"action":   actionType,
		"dir":      migrationDir,
	}).Info("running migration")

	util.ContinueOrFatal(runMigration(db, migrationDir, actionType, migrationName, version))
}

// resolveMigrationTarget checks the action and looks up the dsn of databaseName
// before any connection is opened.
func resolveMigrationTarget(env *config.EnvConfig, databaseName, actionType string) (dsn string, dir string, err error) {
	if !slices.Contains(migrationActions, actionType) {
		return "", "", fmt.Errorf("%w: %q", errUnknownMigrationAction, actionType)
	}

	databaseName = strings.TrimSpace(databaseName)
	if env == nil || databaseName == "" {
		return "", "", fmt.Errorf("%w: %q", errUnknownMigrationDatabase, databaseName)
	}

	dbCfg, ok := env.Database[databaseName]
	if !ok || strings.TrimSpace(dbCfg.DSN) == "" {
		return "", "", fmt.Errorf("%w: %q", errUnknownMigrationDatabase, databaseName)
	}

	return dbCfg.DSN, path.Join(migrationBaseDir, databaseName), nil
}

func runMigration(db *sql.DB, migrationDir, actionType, migrationName string, version int64) error {
	switch actionType {
	case "create":
		return goose.Create(db, migrationDir, migrationName, "sql")
	case "up":
		return goose.Up(db, migrationDir, goose.WithAllowMissing())
	case "up-by-one":
		return goose.UpByOne(db, migrationDir, goose.WithAllowMissing())
	case "up-to":
		return goose.UpTo(db, migrationDir, null.IntFrom(version).Int64, goose.WithAllowMissing())
	case "down":
		return goose.Down(db, migrationDir, goose.WithAllowMissing())
	case "down-to":
		return goose.DownTo(db, migrationDir, null.IntFrom(version).Int64, goose.WithAllowMissing())
	case "status":
		return goose.Status(db, migrationDir)
	case "reset":
		if err := goose.Reset(db, migrationDir, goose.WithAllowMissing()); err != nil {
			return err
		}
		return goose.Up(db, migrationDir, goose.WithAllowMissing())
	default:
		return fmt.Errorf("%w: %q", errUnknownMigrationAction, actionType)
	}
}
