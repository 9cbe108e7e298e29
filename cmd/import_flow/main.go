package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"whatsapp-automation/internal/automation"
	"whatsapp-automation/internal/config"
	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/models"
	"whatsapp-automation/pkg/logger"

	"go.uber.org/zap"
)

// Imports a flow editor export (nodes and edges JSON) into the relational flow tables.
// Usage: import_flow -tenant t1 -name "Welcome" [-id <flow id>] [-publish] flow.json
func main() {
	tenantID := flag.String("tenant", "", "tenant the flow belongs to")
	name := flag.String("name", "", "flow name")
	flowID := flag.String("id", "", "flow id to replace, a new one is generated when empty")
	publish := flag.Bool("publish", false, "publish the flow instead of saving it as draft")
	flag.Parse()

	cfg := config.LoadConfig()
	zlog, err := logger.New(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	if *tenantID == "" || flag.NArg() != 1 {
		zlog.Fatal("usage: import_flow -tenant <id> -name <name> [-id <flow id>] [-publish] <file>")
	}
	path := flag.Arg(0)

	raw, err := os.ReadFile(path)
	if err != nil {
		zlog.Fatal("failed to read flow file", zap.String("path", path), zap.Error(err))
	}
	var graph automation.FlowGraphData
	if err := json.Unmarshal(raw, &graph); err != nil {
		zlog.Fatal("flow file is not an editor export", zap.String("path", path), zap.Error(err))
	}

	status := models.FlowDraft
	if *publish {
		status = models.FlowPublished
	}
	flow := automation.BuildFlow(*flowID, *tenantID, *name, status, graph)

	// Published flows must be runnable, drafts may be work in progress.
	if _, err := automation.NewGraph(flow); err != nil {
		if *publish {
			zlog.Fatal("flow graph is invalid", zap.Error(err))
		}
		zlog.Warn("draft flow graph is invalid", zap.Error(err))
	}

	db, err := database.Open(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to open database", zap.Error(err))
	}
	store := database.NewStore(db)

	if err := store.SaveFlow(context.Background(), flow); err != nil {
		zlog.Fatal("failed to save flow", zap.Error(err))
	}
	zlog.Info("flow imported",
		zap.String("flow_id", flow.ID),
		zap.String("tenant_id", flow.TenantID),
		zap.String("status", flow.Status),
		zap.Int("nodes", len(flow.Nodes)),
		zap.Int("edges", len(flow.Edges)))
}
