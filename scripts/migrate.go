package main

import (
	"flag"
	"log"
	"os"

	migrate "github.com/rubenv/sql-migrate"

	"github.com/johnquangdev/meeting-transcriber/internal/infrastructure/database"
	"github.com/johnquangdev/meeting-transcriber/pkg/config"
)

func main() {
	down := flag.Bool("down", false, "roll back the most recent migration")
	dir := flag.String("dir", "migrations", "migration directory")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB(db)

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}

	migrations := &migrate.FileMigrationSource{Dir: *dir}
	if *down {
		n, err := migrate.ExecMax(sqlDB, "postgres", migrations, migrate.Down, 1)
		if err != nil {
			log.Fatalf("Failed to roll back migration: %v", err)
		}
		log.Printf("↩️ Rolled back %d migration(s)", n)
		os.Exit(0)
	}

	log.Printf("🔄 Applying migrations from %s/ directory...", *dir)
	n, err := migrate.Exec(sqlDB, "postgres", migrations, migrate.Up)
	if err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	log.Printf("✅ Successfully applied %d migration(s)!\n", n)
}
