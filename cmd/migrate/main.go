// Command migrate applies or rolls back the schema in migrations/sql using
// golang-migrate/migrate/v4, the same library the teacher's cmd/migrate
// wraps rather than hand-rolling a SQL runner.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/S-Corkum/agentmesh/pkg/config"
)

func main() {
	var (
		direction = flag.String("direction", "up", "up or down")
		steps     = flag.Int("steps", 0, "number of steps to apply; 0 means all")
		source    = flag.String("source", "migrations/sql", "path to migration files")
		configPath = flag.String("config", "configs", "directory containing config.base.yaml")
	)
	flag.Parse()

	cfg, err := config.NewLoader(*configPath).Load(os.Getenv("AGENTMESH_ENV"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("database.url is not configured")
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", *source), cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to initialize migrator: %v", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			log.Printf("source close error: %v", srcErr)
		}
		if dbErr != nil {
			log.Printf("database close error: %v", dbErr)
		}
	}()

	switch *direction {
	case "up":
		err = runSteps(m, *steps, true)
	case "down":
		err = runSteps(m, *steps, false)
	default:
		log.Fatalf("unknown direction %q: expected up or down", *direction)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("migration complete")
}

func runSteps(m *migrate.Migrate, steps int, up bool) error {
	if steps == 0 {
		if up {
			return m.Up()
		}
		return m.Down()
	}
	if !up {
		steps = -steps
	}
	return m.Steps(steps)
}
