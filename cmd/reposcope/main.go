package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/reposcope-mcp/internal/mcp"
	"github.com/dshills/reposcope-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "reposcope",
		Short:         "Repository summarization and semantic search over MCP, HTTP and the command line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.SetVersionTemplate(fmt.Sprintf("reposcope %s\nBuild Time: %s\nBuild Mode: %s\nSQLite Driver: %s\n",
		version, buildTime, storage.BuildMode, storage.DriverName))
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (YAML); REPOSCOPE_* environment variables override it")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP tools on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, runServe)
		},
	}

	var addr string
	httpCmd := &cobra.Command{
		Use:   "http",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app) error {
				if addr == "" {
					addr = a.cfg.HTTP.Addr
				}
				return runHTTP(ctx, a, addr)
			})
		},
	}
	httpCmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to http.addr)")

	var (
		repoPath     string
		analyzeJSON  bool
		analyzeAgain bool
	)
	analyzeCmd := &cobra.Command{
		Use:   "analyze <folder>",
		Short: "Scan, chunk and summarize a repository checkout into its index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app) error {
				return runAnalyze(ctx, a, args[0], repoPath, analyzeAgain, analyzeJSON)
			})
		},
	}
	analyzeCmd.Flags().StringVar(&repoPath, "path", "", "Repository checkout (defaults to <storage.root>/repos/<folder>)")
	analyzeCmd.Flags().BoolVar(&analyzeAgain, "resume", false, "Re-run analysis over the saved session instead of rescanning")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output the report as JSON")

	var (
		topK       int
		searchJSON bool
	)
	searchCmd := &cobra.Command{
		Use:   "search <folder> <query>",
		Short: "Search a repository's summaries",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app) error {
				return runSearch(ctx, a, args[0], args[1], topK, searchJSON)
			})
		},
	}
	searchCmd.Flags().IntVarP(&topK, "top-k", "k", 5, "Maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output results as JSON")

	statsCmd := &cobra.Command{
		Use:   "stats <folder>",
		Short: "Show index statistics for a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app) error {
				return runStats(ctx, a, args[0])
			})
		},
	}

	rootCmd.AddCommand(serveCmd, httpCmd, analyzeCmd, searchCmd, statsCmd)
	return rootCmd
}

// withApp builds the app under a signal-aware context and closes it afterwards
func withApp(parent context.Context, configPath string, fn func(context.Context, *app) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(ctx, a)
}

func runServe(ctx context.Context, a *app) error {
	server, err := a.mcpServer()
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("MCP server ready, listening on stdio", zap.String("version", version))
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("received shutdown signal, stopping")
		return nil
	case err := <-errChan:
		return err
	}
}

func runHTTP(ctx context.Context, a *app, addr string) error {
	server, err := a.httpServer()
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	return server.ListenAndServe(ctx, addr)
}

func runAnalyze(ctx context.Context, a *app, folder, path string, resume, asJSON bool) error {
	if a.pipeline == nil {
		return errors.New("analysis is disabled: set analysis.api_key or REPOSCOPE_ANALYSIS_API_KEY")
	}

	if resume {
		batch, err := a.pipeline.AnalyzeSession(ctx, folder, a.trace)
		if batch == nil {
			return err
		}
		if err != nil {
			a.logger.Error("analysis ended early", zap.Error(err))
		}
		if asJSON {
			return printJSON(batch)
		}
		printBatch(batch)
		return nil
	}

	if path == "" {
		path = a.cfg.RepoDir(folder)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	report, err := a.pipeline.AnalyzeRepository(ctx, folder, abs, a.trace)
	if report == nil {
		return err
	}
	if err != nil {
		a.logger.Error("analysis ended early", zap.Error(err))
	}
	if asJSON {
		return printJSON(report)
	}
	printReport(report)
	return nil
}

func runSearch(ctx context.Context, a *app, folder, query string, topK int, asJSON bool) error {
	engine, err := a.registry.Engine(ctx, folder)
	if err != nil {
		return err
	}
	results, err := engine.Search(ctx, query, topK)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(results)
	}
	if engine.Size() == 0 {
		fmt.Println("No documents have been indexed yet. Run `reposcope analyze " + folder + "` first.")
		return nil
	}
	fmt.Println(mcp.FormatSearchResults(results))
	return nil
}

func runStats(ctx context.Context, a *app, folder string) error {
	engine, err := a.registry.Engine(ctx, folder)
	if err != nil {
		return err
	}
	stats := engine.Stats()
	fmt.Printf("Folder:             %s\n", folder)
	fmt.Printf("Total documents:    %d\n", stats.TotalDocuments)
	fmt.Printf("Live documents:     %d\n", stats.DocStoreSize)
	fmt.Printf("Embedding dim:      %d\n", stats.Dimension)

	if ledger, err := a.ingestor.Ledger(folder); err == nil {
		fmt.Printf("Files summarized:   %d\n", len(ledger.FilesIndex))
		fmt.Printf("Summaries recorded: %d\n", len(ledger.Chunks))
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
