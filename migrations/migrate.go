// Package migrations embeds the schema and applies it at startup.
package migrations

import (
	"database/sql"
	"embed"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed *.sql
var embedMigrations embed.FS

func Migrate(pgurl string) {
	migrationDB, err := sql.Open("pgx", pgurl)
	if err != nil {
		log.Fatal().Err(err).Msg("opening DB for migrations")
	}

	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal().Err(err).Msg("setting goose dialect")
	}

	if err := goose.Up(migrationDB, "."); err != nil {
		log.Fatal().Err(err).Msg("running up migrations")
	}

	if err := migrationDB.Close(); err != nil {
		log.Fatal().Err(err).Msg("closing migration db connection")
	}
	log.Info().Msg("migrations applied")
}
