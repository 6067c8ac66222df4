// Package main is the Bunmyaku CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/assembler"
	"github.com/hyperjump/bunmyaku/internal/cli"
	"github.com/hyperjump/bunmyaku/internal/config"
	"github.com/hyperjump/bunmyaku/internal/embedding"
	"github.com/hyperjump/bunmyaku/internal/engine"
	"github.com/hyperjump/bunmyaku/internal/ingest"
	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/search"
	"github.com/hyperjump/bunmyaku/internal/server"
	"github.com/hyperjump/bunmyaku/internal/storage"
	"github.com/hyperjump/bunmyaku/internal/token"
	"github.com/hyperjump/bunmyaku/internal/topics"
	"github.com/hyperjump/bunmyaku/internal/vector"
	"github.com/hyperjump/bunmyaku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/bunmyaku/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "bunmyaku server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "add":
		runAdd()
	case "search":
		runSearch()
	case "context":
		runContext()
	case "ingest":
		runIngest()
	case "remove":
		runRemove()
	case "stats":
		runStats()
	case "validate":
		runValidate()
	case "recover":
		runRecover()
	case "version", "--version", "-v":
		fmt.Printf("bunmyaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (requests, ingest activity, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *ingest.Watcher
	if cfg.Watch.Enabled && cfg.Watch.Directory != "" {
		ing := components.Ingestor
		watchSvc = ingest.NewWatcher(
			cfg.Watch.Directory,
			cfg.Watch.Extensions,
			func(path string) {
				if _, _, ingestErr := ing.IngestFile(context.Background(), path); ingestErr != nil {
					logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(ingestErr))
				}
			},
			func(path string) {
				ing.RemoveFile(context.Background(), path)
			},
			logger,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start transcript watcher", zap.Error(err))
		}
		watchSvc.SyncExisting()
		logger.Info("watching transcripts",
			zap.String("directory", cfg.Watch.Directory),
			zap.Strings("extensions", cfg.Watch.Extensions))
	}

	srv := server.NewServer(
		components.Engine,
		components.Messages,
		components.Counter,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	if err := components.Engine.SaveIndex(); err != nil {
		logger.Warn("index save failed", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printSearchUsage prints search subcommand usage and filtering hints.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: bunmyaku search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results are similarity hits over indexed conversation messages.
  • Use --conversation to restrict hits to a single conversation.
  • Use --expand to also search common rephrasings of the query and merge the hits.
  • --min-score filters low-relevance hits (0 disables filtering); --k controls how many.

Examples:
  bunmyaku search how do I deploy
  bunmyaku search "how do I deploy"                  # same as above
  bunmyaku search --conversation alpha deploy steps
  bunmyaku search --expand where did we discuss caching
  bunmyaku search --min-score 0.1 --k 20 your query
`)
}

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting (e.g. "deploy steps" vs deploy steps).
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// configPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func configPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// searchDefaultsFromConfig loads config at path and returns the default k and
// minimum score for the search flags. On load failure, returns 5 and the
// package default threshold.
func searchDefaultsFromConfig(path string) (k int, minScore float64) {
	k, minScore = 5, config.DefaultMinScore
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil {
		return k, minScore
	}
	return cfg.Search.DefaultK, cfg.Search.MinScore
}

// reorderArgs moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "bunmyaku search \"query\" -min-score 0.5"
// would otherwise leave -min-score unparsed.
func reorderArgs(args []string) []string {
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

func parseOutputFormat(name string) (cli.SearchOutputFormat, error) {
	switch name {
	case "json":
		return cli.OutputJSON, nil
	case "text":
		return cli.OutputText, nil
	case "compact":
		return cli.OutputCompact, nil
	default:
		return cli.OutputText, fmt.Errorf("unknown output format %q; use text, compact, or json", name)
	}
}

func runSearch() {
	searchArgs := reorderArgs(os.Args[2:])
	configPath := configPathFromArgs(searchArgs, defaultConfigPath)
	defaultK, defaultMinScore := searchDefaultsFromConfig(configPath)

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage when server is not running)")
	conversationID := fs.String("conversation", "", "restrict results to one conversation")
	k := fs.Int("k", defaultK, "number of results")
	minScore := fs.Float64("min-score", defaultMinScore, "minimum similarity score (0 disables filtering)")
	expand := fs.Bool("expand", false, "search query variants and merge the results")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	if fs.NArg() < 1 {
		printSearchUsage(fs)
		os.Exit(1)
	}
	queryStr := buildQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}

	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	request := &models.SearchRequest{
		Query:          queryStr,
		ConversationID: *conversationID,
		K:              *k,
		MinScore:       minScore,
		Expand:         *expand,
	}

	if *serverURL != "" {
		// Use the HTTP API when the server is running: the live process owns
		// the in-memory index, so direct storage would miss unsaved vectors.
		response, err := searchViaHTTP(*serverURL, request)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		// Auto-retry with expansion if nothing matched and expansion was off
		if !request.Expand && response.Count == 0 {
			request.Expand = true
			expanded, expandErr := searchViaHTTP(*serverURL, request)
			if expandErr == nil && expanded.Count > 0 {
				response = expanded
				response.AutoExpanded = true
			}
		}
		if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct storage access (when server is not running).
	cfg, _, err := loadConfig(*configPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	response := searchDirect(components, request)
	if !request.Expand && response.Count == 0 {
		request.Expand = true
		expanded := searchDirect(components, request)
		if expanded.Count > 0 {
			response = expanded
			response.AutoExpanded = true
		}
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchDirect(components *Components, request *models.SearchRequest) *models.SearchResponse {
	start := time.Now()
	minScore := -1.0
	if request.MinScore != nil {
		minScore = *request.MinScore
	}
	var results []models.ScoredMessage
	if request.Expand {
		results = components.Engine.SearchExpanded(context.Background(), request.Query, request.ConversationID, request.K, minScore)
	} else {
		results = components.Engine.Search(context.Background(), request.Query, request.ConversationID, request.K, minScore)
	}
	if results == nil {
		results = []models.ScoredMessage{}
	}
	return &models.SearchResponse{
		Results:   results,
		Count:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     request.Query,
	}
}

func searchViaHTTP(serverURL string, request *models.SearchRequest) (*models.SearchResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runContext() {
	contextArgs := reorderArgs(os.Args[2:])
	fs := flag.NewFlagSet("context", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage when server is not running)")
	conversationID := fs.String("conversation", "", "conversation to assemble context for (required)")
	maxTokens := fs.Int("max-tokens", 0, "token budget (0 = configured default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(contextArgs)

	queryStr := buildQuery(fs.Args())
	if queryStr == "" || *conversationID == "" {
		fmt.Println("Usage: bunmyaku context --conversation <id> [flags] <query>")
		os.Exit(1)
	}
	format, err := parseOutputFormat(*outputFormat)
	if err != nil || format == cli.OutputCompact {
		fmt.Printf("Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	request := &models.ContextRequest{
		Query:          queryStr,
		ConversationID: *conversationID,
		MaxTokens:      *maxTokens,
	}

	var response *models.ContextResponse
	if *serverURL != "" {
		response, err = contextViaHTTP(*serverURL, request)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Context failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPathFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()

		start := time.Now()
		budget := request.MaxTokens
		if budget <= 0 {
			budget = -1
		}
		text := components.Engine.GenerateContext(context.Background(), request.Query, request.ConversationID, budget)
		response = &models.ContextResponse{
			Context:   text,
			Tokens:    components.Counter.Count(text),
			QueryTime: time.Since(start).Milliseconds(),
		}
	}
	if err := cli.WriteContextResult(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func contextViaHTTP(serverURL string, request *models.ContextRequest) (*models.ContextResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/context", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.ContextResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runAdd() {
	addArgs := reorderArgs(os.Args[2:])
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage when server is not running)")
	conversationID := fs.String("conversation", "", "conversation to append to (required)")
	role := fs.String("role", "user", "message role: user or assistant")
	_ = fs.Parse(addArgs)

	content := buildQuery(fs.Args())
	if content == "" || *conversationID == "" {
		fmt.Println("Usage: bunmyaku add --conversation <id> [flags] <content>")
		os.Exit(1)
	}
	message := models.Message{Role: models.Role(strings.ToLower(*role)), Content: content}
	if message.Role != models.RoleUser && message.Role != models.RoleAssistant {
		fmt.Printf("Unknown role %q; use user or assistant\n", *role)
		os.Exit(1)
	}

	if *serverURL != "" {
		stored, err := appendViaHTTP(*serverURL, *conversationID, []models.Message{message})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Add failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Stored %d message(s) in conversation %s\n", len(stored), *conversationID)
		return
	}

	cfg, _, err := loadConfig(*configPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	stored, ok := components.Engine.AddMessages(context.Background(), *conversationID, []models.Message{message})
	if !ok {
		fmt.Fprintln(os.Stderr, "Add failed: message could not be stored or indexed")
		os.Exit(1)
	}
	fmt.Printf("Stored %d message(s) in conversation %s\n", len(stored), *conversationID)
}

func appendViaHTTP(serverURL, conversationID string, msgs []models.Message) ([]models.Message, error) {
	body, err := json.Marshal(map[string]interface{}{"messages": msgs})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/conversations/"+conversationID+"/messages", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Messages, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: bunmyaku ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		files, messages, err := components.Ingestor.IngestDirectory(ctx, path, cfg.Watch.Extensions)
		if err != nil {
			fmt.Printf("Ingesting directory failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %d file(s), %d message(s) from %s\n", files, messages, path)
		return
	}
	conversationID, n, err := components.Ingestor.IngestFile(ctx, path)
	if err != nil {
		fmt.Printf("Ingesting failed: %v\n", err)
		os.Exit(1)
	}
	if n == 0 {
		fmt.Printf("Unchanged: %s (conversation %s)\n", path, conversationID)
		return
	}
	fmt.Printf("Ingested %s: conversation %s, %d message(s)\n", path, conversationID, n)
}

func runRemove() {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: bunmyaku remove [flags] <conversation-id>")
		os.Exit(1)
	}
	conversationID := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if !components.Engine.Remove(context.Background(), conversationID) {
		fmt.Printf("Conversation not found: %s\n", conversationID)
		os.Exit(1)
	}
	fmt.Printf("Conversation removed: %s\n", conversationID)
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var stats models.StoreStats
	if *serverURL != "" {
		res, err := statsViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
			os.Exit(1)
		}
		stats = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		stats = components.Engine.Stats()
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("total_vectors:        %d   # message embeddings in the index\n", stats.TotalVectors)
		fmt.Printf("dimensions:           %d\n", stats.Dimensions)
		fmt.Printf("conversation_count:   %d\n", stats.ConversationCount)
		fmt.Println()
		fmt.Println("# search analytics (process lifetime)")
		fmt.Printf("total_searches:       %d\n", stats.Analytics.TotalSearches)
		fmt.Printf("successful_searches:  %d\n", stats.Analytics.SuccessfulSearches)
		fmt.Printf("total_results:        %d\n", stats.Analytics.TotalResults)
		fmt.Printf("success_rate:         %.2f\n", stats.Analytics.SuccessRate)
		fmt.Printf("avg_results:          %.2f\n", stats.Analytics.AvgResults)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statsViaHTTP(serverURL string) (*models.StoreStats, error) {
	resp, err := http.Get(serverURL + "/api/v1/stats")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s models.StoreStats
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func runValidate() {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	stats := components.Engine.Stats()
	if !components.Engine.Validate() {
		fmt.Printf("Index invalid (state: %s, vectors: %d)\n", components.Engine.IndexState(), stats.TotalVectors)
		os.Exit(1)
	}
	fmt.Printf("Index valid: %d vector(s) across %d conversation(s)\n", stats.TotalVectors, stats.ConversationCount)
}

func runRecover() {
	fs := flag.NewFlagSet("recover", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	components.Engine.Recover()
	fmt.Println("Index recovered: vector store reset to empty")
	fmt.Println("Re-ingest transcripts or re-add messages to rebuild it.")
}

// Components holds initialized services.
type Components struct {
	Messages storage.MessageStore
	Embedder embedding.Embedder
	Vectors  *vector.FlatStore
	Counter  token.Counter
	Engine   *engine.Engine
	Ingestor *ingest.Ingestor
}

func (c *Components) Close() {
	if c.Engine != nil {
		_ = c.Engine.Close()
	}
	if c.Messages != nil {
		_ = c.Messages.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder embedding.Embedder
	counter := token.Counter(token.Heuristic{})
	onnxEmbedder, err := embedding.NewONNXEmbedder(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
	)
	if err != nil {
		logger.Warn("ONNX embedder unavailable, falling back to mock embedder",
			zap.String("model_path", cfg.Embedding.ModelPath),
			zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = onnxEmbedder
		counter = token.WordCounter{}
	}
	if cached, cacheErr := embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize); cacheErr != nil {
		logger.Warn("embedding cache disabled", zap.Error(cacheErr))
	} else {
		embedder = cached
	}

	vectors, err := vector.NewFlatStore(cfg.Embedding.Dimensions, cfg.Search.OversampleFactor)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	extractor, err := topics.New(cfg.Topics.Extractor)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize topic extractor: %w", err)
	}

	analytics := &search.Analytics{}
	searcher := search.NewSearcher(embedder, vectors, analytics, search.SimpleExpander{}, &cfg.Search, logger)
	asm := assembler.NewAssembler(searcher, store, counter, extractor, &cfg.Context, logger)
	eng := engine.NewEngine(embedder, vectors, store, searcher, asm, analytics, cfg, logger)

	// A load failure means the artifacts are corrupted: reset to an empty
	// index rather than refusing to start.
	if err := eng.LoadIndex(); err != nil {
		eng.Recover()
	}

	return &Components{
		Messages: store,
		Embedder: embedder,
		Vectors:  vectors,
		Counter:  counter,
		Engine:   eng,
		Ingestor: ingest.NewIngestor(eng, store, logger),
	}, nil
}

func printUsage() {
	fmt.Println(`bunmyaku - Conversation memory with semantic retrieval

Usage:
  bunmyaku server [flags]               Start the HTTP server
  bunmyaku add [flags] <content>        Append a message to a conversation
  bunmyaku search [flags] <query>       Search indexed messages
  bunmyaku context [flags] <query>      Assemble budgeted context for a query
  bunmyaku ingest [flags] <path>        Ingest a transcript file or directory
  bunmyaku remove [flags] <id>          Remove a conversation
  bunmyaku stats [flags]                Show index and search statistics
  bunmyaku validate [flags]             Check index consistency
  bunmyaku recover [flags]              Reset the index after corruption
  bunmyaku version                      Show version
  bunmyaku help                         Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/bunmyaku/config.yaml)
  --debug            Enable debug logging (requests, ingest activity, etc.)

Add Flags:
  --conversation string  Conversation to append to (required)
  --role string          Message role: user or assistant (default: user)
  --server string        Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --config string        Config file path (for direct storage mode)

Search Flags:
  --config string        Config file path (for direct storage mode; also used for default k and min-score)
  --server string        Server URL (default: http://localhost:8080). Use empty (--server "") to use direct storage when server is not running.
  --conversation string  Restrict results to one conversation
  --k int                Number of results (default from config, or 5)
  --min-score float      Minimum similarity score (default from config, or 0.2; 0 disables filtering)
  --expand               Search query variants and merge the results (default: false)
  --output string        Output format: text, compact, or json (default: text)

Context Flags:
  --conversation string  Conversation to assemble context for (required)
  --max-tokens int       Token budget (0 = configured default)
  --server string        Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --config string        Config file path (for direct storage mode)
  --output string        Output format: text or json (default: text)

Stats Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --output string    Output format: text or json (default: text)

Examples:
  bunmyaku server
  bunmyaku add --conversation alpha "How do I deploy the staging build?"
  bunmyaku search how do I deploy
  bunmyaku search --output json --min-score 0.1 deploy
  bunmyaku context --conversation alpha --max-tokens 2000 deployment steps
  bunmyaku ingest ./transcripts
  bunmyaku remove alpha
  bunmyaku stats
  bunmyaku validate
  bunmyaku recover`)
}
