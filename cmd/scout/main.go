// Package main is the scout CLI entry point.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/scout/internal/catalog"
	"github.com/hyperjump/scout/internal/cli"
	"github.com/hyperjump/scout/internal/config"
	"github.com/hyperjump/scout/internal/evaluate"
	"github.com/hyperjump/scout/internal/models"
	"github.com/hyperjump/scout/internal/server"
	"github.com/hyperjump/scout/internal/snapshot"
	"github.com/hyperjump/scout/internal/watcher"
	"github.com/hyperjump/scout/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/scout/config.yaml"
	shutdownTimeout   = 10 * time.Second
)

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory takes precedence so that commands run from a project checkout use its config.
// The .env file next to the loaded config is read first so the index API key can live there.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
	}
	if err := config.LoadDotEnv("."); err != nil {
		return nil, "", err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := config.LoadDotEnv(dir); err != nil {
			return nil, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads the config and creates the logger. It exits the process on failure.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode, zap.String("version", version))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, resolved, logger
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "server":
		runServer()
	case "watch":
		runWatch()
	case "catalog":
		runCatalog()
	case "evaluate":
		runEvaluate()
	case "delete-index":
		runDeleteIndex()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("scout version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	dir := fs.String("dir", "", "image directory (default: corpus.image_dir)")
	prune := fs.Bool("prune", false, "remove index entries whose image no longer exists")
	output := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*output)

	cfg, _, logger := setup(*configPath, *debug)
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}

	root := *dir
	if root == "" {
		root = cfg.Corpus.ImageDir
	}
	stats, ingestErr := components.Indexer.Ingest(ctx, root)
	if ingestErr == nil && *prune {
		n, err := components.Indexer.Prune(ctx)
		stats.Pruned = n
		ingestErr = err
	}
	if err := components.Close(context.Background()); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	if stats != nil {
		if err := cli.WriteIngestStats(os.Stdout, stats, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		}
	}
	if ingestErr != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", ingestErr)
		os.Exit(1)
	}
	if stats.Failed+stats.UpsertFailed > 0 {
		fmt.Fprintln(os.Stderr, "Some images were not indexed; run ingest again to retry them.")
		os.Exit(2)
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: scout search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Stage 1 retrieves by embedding similarity. With -rerank, the top -stage1 candidates are
scored again by the configured re-ranker and the best -final are returned.

Examples:
  scout search a red car
  scout search -k 20 "dog playing in the snow"
  scout search -rerank -stage1 100 -final 10 sunset over the ocean
  scout search -output json mountain lake
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "scout search red car -k 5" would
// otherwise leave -k unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL; empty searches the index directly")
	topK := fs.Int("k", 0, "number of results without re-ranking (default: search.top_k)")
	rerankFlag := fs.Bool("rerank", false, "re-rank stage-1 candidates")
	stage1 := fs.Int("stage1", 0, "candidates retrieved for re-ranking (default: search.stage1_k)")
	final := fs.Int("final", 0, "results kept after re-ranking (default: search.final_k)")
	output := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format := parseFormat(*output)
	query := &models.SearchQuery{
		Query:   queryStr,
		TopK:    *topK,
		Rerank:  *rerankFlag,
		Stage1K: *stage1,
		FinalK:  *final,
	}

	if *serverURL != "" {
		response, err := searchViaHTTP(*serverURL, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, _, logger := setup(*configPath, *debug)
	defer logger.Sync()
	ctx, stop := signalContext()
	defer stop()
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{rerank: query.Rerank})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close(context.Background())

	response, err := components.Engine.Run(ctx, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		_ = components.Close(context.Background())
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (directory changes, file ingestion, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{rerank: true})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}

	watchSvc := watcher.New(components.Indexer, cfg.Watch.Directories, cfg.Corpus.Extensions,
		cfg.Watch.RecursiveOrDefault(), watcher.WithLogger(logger))
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	go watchSvc.Sync()

	srv := server.NewServer(components.Engine, cfg,
		server.WithImages(components.Snapshot),
		server.WithIngester(components.Indexer),
		server.WithWatch(watchSvc, resolvedConfigPath),
		server.WithDevice(components.Embedder),
		server.WithLogger(logger))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
		}
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	watchSvc.Stop()
	if err := components.Close(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

func runWatch() {
	if len(os.Args) > 2 {
		switch os.Args[2] {
		case "add", "remove", "list":
			runWatchClient(os.Args[2], os.Args[3:])
			return
		}
	}

	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	dir := fs.String("dir", "", "directory to watch (default: watch.directories, else corpus.image_dir)")
	syncExisting := fs.Bool("sync", true, "ingest images already present before watching")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _, logger := setup(*configPath, *debug)
	defer logger.Sync()

	dirs := cfg.Watch.Directories
	if *dir != "" {
		dirs = []string{*dir}
	}
	if len(dirs) == 0 {
		dirs = []string{cfg.Corpus.ImageDir}
	}

	ctx, stop := signalContext()
	defer stop()
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}

	w := watcher.New(components.Indexer, dirs, cfg.Corpus.Extensions, cfg.Watch.RecursiveOrDefault(),
		watcher.WithLogger(logger))
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	if *syncExisting {
		w.Sync()
	}
	logger.Info("watching for changes; press Ctrl+C to stop", zap.Strings("directories", w.Directories()))
	<-ctx.Done()

	w.Stop()
	c := w.Counters()
	logger.Info("watcher stopped",
		zap.Int64("ingested", c.Ingested),
		zap.Int64("removed", c.Removed),
		zap.Int64("failed", c.Failed))
	if err := components.Close(context.Background()); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

// runWatchClient manages the watched directories of a running server.
func runWatchClient(sub string, args []string) {
	fs := flag.NewFlagSet("watch "+sub, flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(args)
	base := strings.TrimRight(*serverURL, "/") + "/api/v1/watch/directories"

	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: scout watch add [-server url] <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]any{"path": path, "sync": true})
		resp, err := http.Post(base, "application/json", bytes.NewReader(body))
		exitOnBadResponse("Add", resp, err, http.StatusCreated)
		resp.Body.Close()
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: scout watch remove [-server url] <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, base+"?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		exitOnBadResponse("Remove", resp, err, http.StatusOK)
		resp.Body.Close()
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(base)
		exitOnBadResponse("List", resp, err, http.StatusOK)
		defer resp.Body.Close()
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	}
}

func exitOnBadResponse(action string, resp *http.Response, err error, want int) {
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		fmt.Printf("%s failed (%d): %s\n", action, resp.StatusCode, strings.TrimSpace(string(b)))
		os.Exit(1)
	}
}

func runCatalog() {
	if len(os.Args) < 3 || (os.Args[2] != "import" && os.Args[2] != "count") {
		fmt.Println("Usage: scout catalog <import|count> [flags] [file.tsv]")
		fmt.Println("  scout catalog import photos.tsv   Load photo descriptions from a TSV export")
		fmt.Println("  scout catalog count               Show how many descriptions are stored")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("catalog "+sub, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[3:])
	format := parseFormat(*output)

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()
	cat, err := catalog.Open(cfg.Storage.CatalogPath)
	if err != nil {
		logger.Fatal("Failed to open catalog", zap.Error(err))
	}
	defer cat.Close()
	ctx, stop := signalContext()
	defer stop()

	var result any
	switch sub {
	case "import":
		if fs.NArg() < 1 {
			fmt.Println("Usage: scout catalog import [flags] <file.tsv>")
			os.Exit(1)
		}
		stats, err := cat.ImportFile(ctx, fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
			os.Exit(1)
		}
		logger.Info("catalog imported", zap.String("file", fs.Arg(0)), zap.Int("imported", stats.Imported))
		if format == cli.OutputText {
			fmt.Printf("Rows: %d, imported: %d, without description: %d\n", stats.Rows, stats.Imported, stats.NoText)
			return
		}
		result = stats
	case "count":
		n, err := cat.Count(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count failed: %v\n", err)
			os.Exit(1)
		}
		if format == cli.OutputText {
			fmt.Printf("%d descriptions\n", n)
			return
		}
		result = map[string]int64{"descriptions": n}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

func runEvaluate() {
	def := evaluate.DefaultOptions()
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	sample := fs.Int("sample", def.SampleSize, "number of descriptions used as queries")
	seed := fs.Int64("seed", def.Seed, "sampling seed")
	stage1 := fs.Int("stage1", def.Stage1K, "candidates retrieved per query")
	final := fs.Int("final", def.FinalK, "results kept per query")
	output := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*output)

	cfg, _, logger := setup(*configPath, *debug)
	defer logger.Sync()
	ctx, stop := signalContext()
	defer stop()
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{rerank: true})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close(context.Background())

	ev := evaluate.NewEvaluator(components.Engine, components.Catalog, components.Snapshot.Entries(),
		evaluate.WithLogger(logger))
	report, err := ev.Run(ctx, evaluate.Options{SampleSize: *sample, Seed: *seed, Stage1K: *stage1, FinalK: *final})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Evaluation failed: %v\n", err)
		if errors.Is(err, evaluate.ErrNoSamples) {
			fmt.Fprintln(os.Stderr, "Import descriptions with 'scout catalog import' and ingest the matching images first.")
		}
		_ = components.Close(context.Background())
		os.Exit(1)
	}
	if err := cli.WriteEvaluation(os.Stdout, report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
	}
}

func runDeleteIndex() {
	fs := flag.NewFlagSet("delete-index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	_ = fs.Parse(os.Args[2:])

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()

	if !*yes && !confirm(os.Stdin, os.Stdout, fmt.Sprintf("Delete index %q on %s and its snapshot?", cfg.Index.Name, cfg.Index.Backend)) {
		fmt.Println("Aborted.")
		return
	}

	ctx, stop := signalContext()
	defer stop()
	idx, err := openIndex(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open index", zap.Error(err))
	}
	defer idx.Close()
	if err := idx.DeleteIndex(ctx, cfg.Index.Name); err != nil {
		fmt.Fprintf(os.Stderr, "Deletion failed: %v\n", err)
		os.Exit(1)
	}
	if err := os.Remove(cfg.Storage.SnapshotPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove snapshot", zap.String("path", cfg.Storage.SnapshotPath), zap.Error(err))
	}
	fmt.Printf("Index deleted: %s\n", cfg.Index.Name)
}

// confirm asks a yes/no question and reports whether the answer was yes.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL; empty reads local state")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*output)

	var status server.Status
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		snap, err := snapshot.Load(cfg.Storage.SnapshotPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read snapshot: %v\n", err)
			os.Exit(1)
		}
		status, err = server.BuildStatus(cfg, snap, cfg.Rerank.Strategy)
		if err != nil {
			logger.Warn("disk usage unavailable", zap.Error(err))
		}
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*server.Status, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var s server.Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func printUsage() {
	fmt.Println(`scout - zero-shot semantic image search

Usage:
  scout ingest [flags]                 Embed and index the image corpus
  scout search [flags] <query>         Search images by text
  scout server [flags]                 Start the HTTP API
  scout watch [flags]                  Ingest new images as they appear
  scout watch <add|remove|list>        Manage the watched directories of a running server
  scout catalog <import|count>         Load or inspect photo descriptions
  scout evaluate [flags]               Measure Recall@1/5/10 and MRR
  scout delete-index [-yes]            Delete the vector index and the local snapshot
  scout status [flags]                 Show index and storage status
  scout version                        Show version
  scout help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/scout/config.yaml, or ./config.yaml if present)
  --debug            Enable debug logging
  --output string    Output format: text or json (default: text)

Ingest Flags:
  --dir string       Image directory (default: corpus.image_dir)
  --prune            Remove entries whose image file was deleted

Search Flags:
  --k int            Number of results (default: search.top_k)
  --rerank           Re-rank stage-1 candidates with the configured strategy
  --stage1 int       Candidates retrieved for re-ranking (default: search.stage1_k)
  --final int        Results kept after re-ranking (default: search.final_k)
  --server string    Send the query to a running server instead of opening the index

Evaluate Flags:
  --sample int       Descriptions used as queries (default: 100)
  --seed int         Sampling seed (default: 42)
  --stage1 int       Candidates per query (default: 100)
  --final int        Results kept per query (default: 10)

Examples:
  scout catalog import ./data/photos.tsv000
  scout ingest
  scout search a red car
  scout search -rerank -output json dog playing in the snow
  scout evaluate -sample 200
  scout server
  scout watch add /path/to/new/photos`)
}
