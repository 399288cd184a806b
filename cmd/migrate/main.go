// Command migrate applies (or rolls back) the schema in migrations/
// against DATABASE_URL using golang-migrate.
package main

import (
	"errors"
	"flag"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/triggerd/engine/config"
)

func main() {
	down := flag.Bool("down", false, "roll back one migration instead of applying all pending ones")
	steps := flag.Int("steps", 0, "apply N migrations (positive) or roll back N (negative); overrides -down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	m, err := migrate.New("file://migrations", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("init migrator: %v", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			log.Printf("close migration source: %v", srcErr)
		}
		if dbErr != nil {
			log.Printf("close migration db: %v", dbErr)
		}
	}()

	switch {
	case *steps != 0:
		err = m.Steps(*steps)
	case *down:
		err = m.Steps(-1)
	default:
		err = m.Up()
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migrate: %v", err)
	}

	log.Println("migrations applied")
}
