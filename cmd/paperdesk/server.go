package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/paperdesk/paperdesk/internal/api"
	"github.com/paperdesk/paperdesk/internal/assistant"
	"github.com/paperdesk/paperdesk/internal/config"
	"github.com/paperdesk/paperdesk/internal/extract"
	"github.com/paperdesk/paperdesk/internal/ingest"
	"github.com/paperdesk/paperdesk/internal/library"
	"github.com/paperdesk/paperdesk/internal/ollama"
	"github.com/paperdesk/paperdesk/internal/storage"
	"github.com/paperdesk/paperdesk/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the paperdesk server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running paperdesk server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show paperdesk system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "paperdesk.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "paperdesk version %s\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to start twice: probe health, then claim the PID file.
	pidPath := pidFilePath(cfg.Store.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("paperdesk is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("paperdesk is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check Ollama readiness, pulling missing models.
	ollamaClient := ollama.NewWithTimeout(cfg.Ollama.BaseURL, time.Duration(cfg.Ollama.TimeoutSecs)*time.Second)
	if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.Model, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	// Pick the index backend.
	var index store.Index
	switch cfg.Store.Backend {
	case "qdrant":
		index = store.NewQdrantIndex(store.QdrantConfig{
			URL:        cfg.Qdrant.URL,
			Collection: cfg.Qdrant.Collection,
			Dimension:  cfg.Qdrant.Dimension,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		db, err := storage.Open(cfg.Store.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				slog.Warn("closing storage", "error", err)
			}
		}()
		index = store.NewSQLiteIndex(db.SQL())
	}

	embedder := store.NewOllamaEmbedder(ollamaClient, cfg.Ollama.EmbedModel)
	papers := store.New(embedder, index)
	if err := papers.Init(ctx); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}

	gen := ollama.NewGenerator(ollamaClient, cfg.Ollama.Model)
	asst := assistant.New(papers, gen,
		assistant.WithTopK(cfg.Retrieval.TopK),
		assistant.WithMaxDocChars(cfg.Retrieval.MaxDocChars),
	)

	ingestSvc := ingest.New(extract.New(), papers, ingest.Config{
		MaxFileSize:      cfg.Ingest.MaxFileSize,
		SupportedFormats: cfg.Ingest.SupportedFormats,
	})

	citations, err := library.OpenCitations(cfg.Store.DataDir)
	if err != nil {
		return fmt.Errorf("opening citations: %w", err)
	}
	ingestSvc.RecordCitationsTo(citations)
	deadlines, err := library.OpenDeadlines(cfg.Store.DataDir)
	if err != nil {
		return fmt.Errorf("opening deadlines: %w", err)
	}

	handler := api.NewHandler(api.Deps{
		Store:     papers,
		Assistant: asst,
		Ingest:    ingestSvc,
		Citations: citations,
		Deadlines: deadlines,
		Token:     cfg.Server.APIToken,
		MaxUpload: cfg.Ingest.MaxFileSize,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP over stdio in a goroutine.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     papers,
		Assistant: asst,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "paperdesk listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Store.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("paperdesk is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop paperdesk (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to paperdesk (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Model", "%s", cfg.Ollama.Model)
	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	printStatus("Store backend", "%s", cfg.Store.Backend)

	// Show paper count if the server is up.
	if resp != nil && resp.StatusCode == 200 {
		if apiCl, err := newAPIClient(); err == nil {
			if papersResp, err := apiCl.get(context.Background(), "/papers"); err == nil {
				var papers []struct {
					ID string `json:"id"`
				}
				if decodeJSON(papersResp, &papers) == nil {
					printStatus("Papers", "%d", len(papers))
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Store.DataDir)
	return nil
}
