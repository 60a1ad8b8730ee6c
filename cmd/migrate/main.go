package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenhouse-ops/zonefix/internal/adapters/postgres"
	"github.com/greenhouse-ops/zonefix/internal/pkg/config"
)

const migrationsDir = "migrations"

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down|seed FILE>")
	}

	cfg, err := config.Load("zonefix-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		runMigrations(ctx, db.Pool, upFiles())
	case "down":
		runMigrations(ctx, db.Pool, downFiles())
	case "seed":
		if len(os.Args) < 3 {
			log.Fatal("usage: migrate seed FILE")
		}
		beds, zones, err := seedFile(ctx, db, os.Args[2])
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		log.Printf("seeded %d beds, %d zones", beds, zones)
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

func upFiles() []string {
	files, _ := filepath.Glob(filepath.Join(migrationsDir, "*.sql"))
	files = slices.DeleteFunc(files, func(f string) bool { return strings.HasSuffix(f, ".down.sql") })
	slices.Sort(files)
	return files
}

func downFiles() []string {
	files, _ := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	slices.Sort(files)
	slices.Reverse(files)
	return files
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool, files []string) {
	if len(files) == 0 {
		log.Fatalf("no migrations found in %s", migrationsDir)
	}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}

		_, err = pool.Exec(ctx, string(data))
		if err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}

		fmt.Printf("OK  %s\n", f)
	}

	log.Println("all migrations applied")
}
