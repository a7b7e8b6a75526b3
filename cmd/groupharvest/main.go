package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ForumScholar/GroupHarvest/internal/checkpoint"
	"github.com/ForumScholar/GroupHarvest/internal/extract"
	"github.com/ForumScholar/GroupHarvest/internal/ingest"
	"github.com/ForumScholar/GroupHarvest/internal/logger"
	"github.com/ForumScholar/GroupHarvest/internal/output"
	"github.com/ForumScholar/GroupHarvest/internal/shutdown"
	"github.com/ForumScholar/GroupHarvest/pkg/harvest"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool

	// Crawl flags
	quota          int
	outputFile     string
	checkpointFile string
	stateBackend   string
	headless       bool
	minDelay       time.Duration
	maxDelay       time.Duration
	settle         time.Duration

	// Ingest flags
	inputFile    string
	chunksFile   string
	registryFile string
	chunkSize    int
	chunkOverlap int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "groupharvest",
		Short: "GroupHarvest - Discussion Group Archiver",
		Long: `GroupHarvest - A polite, resumable archiver for web discussion groups.

Traverses group listings with a headless browser, extracts thread content,
and checkpoints every step so interrupted runs resume exactly where they
stopped.`,
		Version: version,
	}

	crawlCmd := &cobra.Command{
		Use:   "crawl [group-url...]",
		Short: "Harvest one or more group collections",
		Long:  "Harvest the given group listing URLs, resuming from the checkpoint when one exists.",
		RunE:  runCrawl,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show checkpoint status",
		Long:  "Show per-collection traversal progress from the checkpoint file.",
		RunE:  runStatus,
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk harvested records for indexing",
		Long:  "Read the harvested CSV, split content into overlapping chunks, and write them as JSON.",
		RunE:  runIngest,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	crawlCmd.Flags().IntVarP(&quota, "quota", "q", 0, "Max items per collection per run")
	crawlCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (.csv, .json, or .ndjson)")
	crawlCmd.Flags().StringVar(&checkpointFile, "checkpoint", "", "Checkpoint file")
	crawlCmd.Flags().StringVar(&stateBackend, "state-backend", "json", "Checkpoint backend (json, bolt)")
	crawlCmd.Flags().BoolVar(&headless, "headless", true, "Run the browser headless")
	crawlCmd.Flags().DurationVar(&minDelay, "min-delay", 0, "Minimum pause between item fetches")
	crawlCmd.Flags().DurationVar(&maxDelay, "max-delay", 0, "Maximum pause between item fetches")
	crawlCmd.Flags().DurationVar(&settle, "settle", 0, "Wait after page loads and scrolls")

	statusCmd.Flags().StringVar(&checkpointFile, "checkpoint", "", "Checkpoint file to inspect")
	statusCmd.Flags().StringVar(&stateBackend, "state-backend", "json", "Checkpoint backend (json, bolt)")

	ingestCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Harvested CSV to ingest")
	ingestCmd.Flags().StringVarP(&chunksFile, "output", "o", "data/chunks.json", "Chunk output file")
	ingestCmd.Flags().StringVar(&registryFile, "registry", "data/ingest_registry.json", "Ingest registry file")
	ingestCmd.Flags().IntVar(&chunkSize, "chunk-size", 1000, "Chunk size in runes")
	ingestCmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 100, "Overlap between consecutive chunks")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ingestCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := harvest.LoadConfig(configFile)
	if err != nil {
		return err
	}

	if len(args) > 0 {
		cfg.Collections = args
	}
	if cmd.Flags().Changed("quota") {
		cfg.Quota = quota
	}
	if outputFile != "" {
		cfg.OutputPath = outputFile
	}
	if checkpointFile != "" {
		cfg.CheckpointPath = checkpointFile
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = headless
	}
	if minDelay > 0 {
		cfg.MinDelay = minDelay
	}
	if maxDelay > 0 {
		cfg.MaxDelay = maxDelay
	}
	if settle > 0 {
		cfg.Settle = settle
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.Collections) == 0 {
		return fmt.Errorf("no collections given; pass group URLs or set TARGET_GROUPS")
	}

	log := newLogger(cfg.LogLevel)
	logger.SetGlobal(log)

	store, err := openStore(cfg.CheckpointPath)
	if err != nil {
		return err
	}
	cp, err := checkpoint.Open(store, checkpoint.WithLogger(log))
	if err != nil {
		return err
	}

	browser, err := extract.NewBrowser(cfg.Browser)
	if err != nil {
		_ = cp.Close()
		return err
	}
	extractor := extract.NewGroupExtractor(browser, cfg.Settle, log)

	writer, err := newWriter(cfg.OutputPath)
	if err != nil {
		_ = browser.Close()
		_ = cp.Close()
		return err
	}

	h, err := harvest.New(
		harvest.WithConfig(cfg),
		harvest.WithExtractor(extractor),
		harvest.WithCheckpoint(cp),
		harvest.WithWriter(writer),
		harvest.WithLogger(log),
	)
	if err != nil {
		_ = browser.Close()
		_ = cp.Close()
		return err
	}

	handler := shutdown.NewDefault()
	handler.RegisterCloser("checkpoint", cp.Close)
	handler.RegisterCloser("extractor", extractor.Close)
	handler.RegisterCloser("browser", browser.Close)
	handler.RegisterCloser("output", writer.Close)

	result, runErr := h.Run(handler.Context())

	if !handler.Stopping() {
		handler.Shutdown()
	}
	<-handler.Done()

	printSummary(result)
	return runErr
}

func runStatus(cmd *cobra.Command, args []string) error {
	path := checkpointFile
	if path == "" {
		cfg, err := harvest.LoadConfig(configFile)
		if err != nil {
			return err
		}
		path = cfg.CheckpointPath
	}

	store, err := openStore(path)
	if err != nil {
		return err
	}
	cp, err := checkpoint.Open(store)
	if err != nil {
		return err
	}
	defer cp.Close()

	groups := cp.Groups()
	if len(groups) == 0 {
		fmt.Printf("No progress recorded in %s\n", path)
		return nil
	}

	collections := make([]string, 0, len(groups))
	for coll := range groups {
		collections = append(collections, coll)
	}
	sort.Strings(collections)

	fmt.Printf("Checkpoint: %s\n", path)
	fmt.Printf("Items harvested: %d\n\n", cp.SeenCount())
	for _, coll := range collections {
		g := groups[coll]
		state := "in progress"
		if g.Completed {
			state = "completed"
		}
		fmt.Printf("  %s\n    position: %d, %s\n", coll, g.LastThreadIndex, state)
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	if inputFile == "" {
		cfg, err := harvest.LoadConfig(configFile)
		if err != nil {
			return err
		}
		inputFile = cfg.OutputPath
	}

	records, err := ingest.ReadCSV(inputFile)
	if err != nil {
		return err
	}

	registry, err := ingest.OpenRegistry(registryFile)
	if err != nil {
		return err
	}

	ing := ingest.NewIngester(ingest.NewChunker(chunkSize, chunkOverlap), registry)
	chunks := ing.IngestRecords(records)

	if err := registry.Close(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(chunksFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(chunksFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write chunks: %w", err)
	}

	fmt.Printf("Ingested %d records into %d chunks (%s)\n", len(records), len(chunks), chunksFile)
	return nil
}

func newLogger(level string) *logger.Logger {
	parsed, err := logger.ParseLevel(level)
	if err != nil {
		parsed = logger.InfoLevel
	}
	cfg := logger.DefaultConfig()
	cfg.Level = parsed
	return logger.New(cfg)
}

func openStore(path string) (checkpoint.Store, error) {
	if stateBackend == "bolt" || strings.HasSuffix(path, ".db") {
		return checkpoint.NewBoltStore(path)
	}
	return checkpoint.NewFileStore(path), nil
}

func newWriter(path string) (output.Writer, error) {
	switch {
	case path == "":
		return output.NewJSONWriter(os.Stdout, true, false), nil
	case strings.HasSuffix(path, ".ndjson"):
		f, err := createFile(path)
		if err != nil {
			return nil, err
		}
		return output.NewJSONWriter(f, false, true), nil
	case strings.HasSuffix(path, ".json"):
		f, err := createFile(path)
		if err != nil {
			return nil, err
		}
		return output.NewJSONWriter(f, true, false), nil
	default:
		return output.NewCSVFileWriter(path)
	}
}

func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

func printSummary(result *harvest.Result) {
	if result == nil {
		return
	}
	fmt.Printf("\nHarvest finished in %s\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("  processed: %d, skipped: %d, failed: %d\n", result.Processed, result.Skipped, result.Failed)
	for _, s := range result.Collections {
		state := "in progress"
		if s.Completed {
			state = "completed"
		}
		fmt.Printf("  %s: %d processed (%s)\n", s.Collection, s.Processed, state)
	}
}
