package cli

import (
	"log"
	"os"

	"github.com/lucasnoah/buildmedic/internal/artifacts"
	"github.com/lucasnoah/buildmedic/internal/checkpoint"
	"github.com/lucasnoah/buildmedic/internal/command"
	"github.com/lucasnoah/buildmedic/internal/config"
	"github.com/lucasnoah/buildmedic/internal/db"
	"github.com/lucasnoah/buildmedic/internal/detect"
	"github.com/lucasnoah/buildmedic/internal/history"
	"github.com/lucasnoah/buildmedic/internal/oracle"
	"github.com/lucasnoah/buildmedic/internal/pipeline"
)

// app bundles the wired-up orchestrator stack shared by the subcommands.
type app struct {
	cfg  *config.FileConfig
	orch *pipeline.Orchestrator
	db   *db.DB
}

// newApp loads configuration and wires the orchestrator. The sqlite event
// log and artifact store are best-effort: failure to open either degrades
// to in-memory state only.
func newApp(configPath string) (*app, func(), error) {
	var cfg *config.FileConfig
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, nil, err
	}

	// Fill missing commands from project markers so a bare repo still runs.
	if cfg.Project.BuildCommand == "" {
		inferred := detect.Commands(cfg.Project.Root)
		cfg.Project.BuildCommand = inferred.BuildCommand
		if cfg.Project.TestCommand == "" {
			cfg.Project.TestCommand = inferred.TestCommand
		}
		if cfg.Project.LintCommand == "" {
			cfg.Project.LintCommand = inferred.LintCommand
		}
	}

	store, err := artifacts.DefaultStore()
	if err != nil {
		log.Printf("artifact store unavailable: %v", err)
		store = nil
	}

	var database *db.DB
	if path, err := db.DefaultDBPath(); err == nil {
		database, err = db.Open(path)
		if err != nil {
			log.Printf("event log unavailable: %v", err)
			database = nil
		} else if err := database.Migrate(); err != nil {
			log.Printf("event log migration failed: %v", err)
			_ = database.Close()
			database = nil
		}
	}

	var orc oracle.Oracle
	if key := cfg.APIKey(); key != "" {
		orc = oracle.NewOpenAIOracle(key, cfg.Oracle.Model)
	}

	orch := pipeline.NewOrchestrator(&command.ExecRunner{}, &checkpoint.ExecGit{}, orc, history.NewRing(0), store, database)
	orch.SetProgress(os.Stderr)

	cleanup := func() {
		if database != nil {
			_ = database.Close()
		}
	}
	return &app{cfg: cfg, orch: orch, db: database}, cleanup, nil
}
