package main

import (
	"log"

	"tracking-support-be/internal/config"
	"tracking-support-be/internal/model"
	"tracking-support-be/pkg/database"
)

func main() {
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, true)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Running AutoMigrate for support_turn_logs...")
	if err := database.Migrate(db, &model.TurnLog{}); err != nil {
		log.Fatalf("Error: migration failed: %v", err)
	}
	log.Println("Migration completed")
}
