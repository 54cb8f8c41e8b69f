package main

// Run database migrations:
//   go run ./cmd/migrate            (up)
//   go run ./cmd/migrate status
//   go run ./cmd/migrate down

import (
	"context"
	"log"
	"os"

	"docintel-batch/internal/shared/config"
	"docintel-batch/internal/shared/storage/db"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	command := "up"
	var args []string
	if len(os.Args) > 1 {
		command = os.Args[1]
		args = os.Args[2:]
	}

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunCommand(ctx, sqlDB, command, args...); err != nil {
		log.Printf("failed to run migrations %s: %v", command, err)
		os.Exit(1)
	}
}
