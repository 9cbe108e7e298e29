package main

import (
	"log"

	"whatsapp-automation/internal/config"
	"whatsapp-automation/internal/database"
	"whatsapp-automation/pkg/logger"

	"go.uber.org/zap"
)

// Tables with serial ids. Rows copied with explicit ids leave their sequences behind.
var tables = []string{
	"integrations",
	"flow_nodes",
	"flow_edges",
	"templates",
	"automation_logs",
}

func main() {
	cfg := config.LoadConfig()

	zlog, err := logger.New(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	if cfg.DBDriver != "postgres" {
		zlog.Fatal("sequence sync needs DB_DRIVER=postgres", zap.String("driver", cfg.DBDriver))
	}
	db, err := database.Open(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to open database", zap.Error(err))
	}

	zlog.Info("syncing postgres sequences")
	for _, table := range tables {
		query := "SELECT setval(pg_get_serial_sequence('" + table + "', 'id'), coalesce(max(id), 0) + 1, false) FROM " + table
		if err := db.Exec(query).Error; err != nil {
			zlog.Error("failed to sync sequence", zap.String("table", table), zap.Error(err))
			continue
		}
		zlog.Info("sequence synced", zap.String("table", table))
	}
}
