// llmcore is a small CLI for exercising the completion pipeline: it
// loads configuration, migrates the memory store when needed and runs
// one prompt through the client.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/2ai-cx/llmcore/client"
	"github.com/2ai-cx/llmcore/config"
	"github.com/2ai-cx/llmcore/llm"
	"github.com/2ai-cx/llmcore/logger"
	"github.com/2ai-cx/llmcore/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath     = flag.String("config", config.GetConfigPath(), "Path to config file")
		prompt         = flag.String("prompt", "", "Prompt to send (required)")
		model          = flag.String("model", "", "Model override")
		tenantID       = flag.String("tenant", "", "Tenant identifier")
		userID         = flag.String("user", "", "User identifier")
		withMemory     = flag.Bool("memory", false, "Use conversation memory for this prompt")
		migrationsPath = flag.String("migrations", "migrations", "Path to migration files")
		timeout        = flag.Duration("timeout", 2*time.Minute, "Overall request timeout")
	)
	flag.Parse()

	if *prompt == "" {
		return fmt.Errorf("-prompt is required")
	}

	log, err := logger.InitWithOptions("", true)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.RAG.Enabled {
		if err := migrateStore(cfg.RAG.StorePath, *migrationsPath, log); err != nil {
			return err
		}
	}

	c, err := client.New(cfg, log)
	if err != nil {
		return fmt.Errorf("build client: %w", err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var resp *llm.Response
	if *withMemory {
		req := &llm.Request{
			Model:    *model,
			Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, *prompt)},
			TenantID: *tenantID,
			UserID:   *userID,
		}
		resp, err = c.ChatCompletionWithMemory(ctx, req)
	} else {
		resp, err = c.Generate(ctx, *prompt, &client.Options{
			Model:    *model,
			TenantID: *tenantID,
			UserID:   *userID,
		})
	}
	if err != nil {
		return err
	}

	fmt.Println(resp.Content)
	fmt.Fprintf(os.Stderr, "\n[%s/%s cached=%t latency=%v cost=$%.6f]\n",
		resp.Provider, resp.Model, resp.Cached, resp.Latency, resp.Cost)
	return nil
}

func migrateStore(storePath, migrationsPath string, log zerolog.Logger) error {
	db, err := sql.Open("sqlite3", storePath)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	if err := migrations.RunMigrations(db, migrationsPath, log); err != nil {
		_ = db.Close()
		return err
	}
	return db.Close()
}
