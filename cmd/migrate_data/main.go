package main

import (
	"flag"
	"log"
	"reflect"

	"whatsapp-automation/internal/config"
	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/models"
	"whatsapp-automation/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Copies every table from a SQLite file into the configured PostgreSQL database.
// Rows that already exist on the destination are left alone, so the copy can be rerun.
func main() {
	cfg := config.LoadConfig()
	source := flag.String("source", cfg.DBPath, "path of the SQLite database to copy from")
	batch := flag.Int("batch", 500, "rows per insert")
	flag.Parse()

	zlog, err := logger.New(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	sqliteDB, err := gorm.Open(sqlite.Open(*source), &gorm.Config{Logger: database.NewGormLogger(zlog)})
	if err != nil {
		zlog.Fatal("failed to open sqlite source", zap.String("path", *source), zap.Error(err))
	}
	zlog.Info("connected to sqlite", zap.String("path", *source))

	cfg.DBDriver = "postgres"
	pgDB, err := database.Open(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to open postgres destination", zap.Error(err))
	}

	failed := 0
	for _, model := range models.All() {
		if err := migrateTable(sqliteDB, pgDB, model, *batch, zlog); err != nil {
			failed++
		}
	}
	if failed > 0 {
		zlog.Fatal("migration finished with errors", zap.Int("failed_tables", failed))
	}
	zlog.Info("migration completed, run sync_sequences next")
}

func migrateTable(src, dst *gorm.DB, model interface{}, batch int, log *zap.Logger) error {
	stmt := &gorm.Statement{DB: src}
	if err := stmt.Parse(model); err != nil {
		log.Error("failed to parse model", zap.Error(err))
		return err
	}
	table := stmt.Schema.Table
	log = log.With(zap.String("table", table))

	if !src.Migrator().HasTable(model) {
		log.Info("table missing on source, skipped")
		return nil
	}

	rows := reflect.New(reflect.SliceOf(reflect.TypeOf(model).Elem()))
	if err := src.Find(rows.Interface()).Error; err != nil {
		log.Error("failed to read source rows", zap.Error(err))
		return err
	}
	count := rows.Elem().Len()
	if count == 0 {
		log.Info("no rows")
		return nil
	}

	err := dst.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows.Interface(), batch).Error
	})
	if err != nil {
		log.Error("failed to write rows", zap.Error(err))
		return err
	}
	log.Info("table migrated", zap.Int("rows", count))
	return nil
}
