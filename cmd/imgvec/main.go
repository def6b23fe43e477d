package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/imgvec/imgvec/internal/collection"
	"github.com/imgvec/imgvec/internal/config"
	"github.com/imgvec/imgvec/internal/embeddings"
	"github.com/imgvec/imgvec/internal/record"
	"github.com/imgvec/imgvec/internal/server"
	"github.com/imgvec/imgvec/internal/storage"
	"github.com/imgvec/imgvec/internal/ui"
)

var (
	// version is set by goreleaser at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// CLI flags
	debug          bool
	collectionName string
	dbPath         string
	serverURL      string

	topN      int
	threshold float64
	whereKVs  []string

	serveAddr string
	forceYes  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "imgvec",
		Short:   "Image similarity store",
		Long:    "imgvec stores image embeddings and answers nearest-image queries,\nbacked by a local SQLite database or a remote imgvec server",
		Version: version,
	}

	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&collectionName, "collection", "c", "", "Collection name (default from config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default from config)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Remote server URL (switches to the remote backend)")

	queryCmd := &cobra.Command{
		Use:   "query <image>",
		Short: "Find the stored images most similar to the given one",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}
	queryCmd.Flags().IntVarP(&topN, "top", "n", collection.DefaultTopN, "Maximum number of results")
	queryCmd.Flags().Float64VarP(&threshold, "threshold", "t", 0.0, "Minimum similarity score (inclusive)")
	queryCmd.Flags().StringArrayVarP(&whereKVs, "where", "w", nil, "Metadata equality filter, key=value (repeatable)")

	indexCmd := &cobra.Command{
		Use:   "index <directory>",
		Short: "Ingest every image in a directory into the collection",
		Args:  cobra.ExactArgs(1),
		RunE:  runIndex,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the imgvec HTTP server",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from IMGVEC_ADDR or :5000)")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop all records in the collection (local backend only)",
		RunE:  runReset,
	}
	resetCmd.Flags().BoolVarP(&forceYes, "yes", "y", false, "Skip the confirmation prompt")

	listCmd := &cobra.Command{
		Use:   "list-collections",
		Short: "List collections in the local database",
		RunE:  runList,
	}

	configureCmd := &cobra.Command{
		Use:   "configure",
		Short: "Configure imgvec interactively",
		RunE:  runConfigure,
	}

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(configureCmd)

	return rootCmd
}

// openCollection builds the backend and embedder from config and flags
// and opens the collection.
func openCollection(ctx context.Context) (*collection.Collection, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	name := collectionName
	if name == "" {
		name = cfg.Collection
	}

	embedder, err := embeddings.NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, nil, err
	}

	url := serverURL
	if url == "" {
		url = cfg.ServerURL
	}

	if url != "" {
		if debug {
			fmt.Fprintf(os.Stderr, "[DEBUG] using remote backend at %s\n", url)
		}
		backend := storage.NewHTTP(url)
		col, err := collection.OpenWithDebug(ctx, name, backend, embedder, debug)
		if err != nil {
			return nil, nil, err
		}
		return col, func() {}, nil
	}

	path := dbPath
	if path == "" {
		path = cfg.DBPath
	}
	if debug {
		fmt.Fprintf(os.Stderr, "[DEBUG] using local backend at %s (embedder: %s)\n", path, embedder.Name())
	}

	store, err := storage.OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}

	col, err := collection.OpenWithDebug(ctx, name, store, embedder, debug)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return col, func() { store.Close() }, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	filter, err := parseFilter(whereKVs)
	if err != nil {
		return err
	}

	col, closeFn, err := openCollection(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := col.Query(ctx, raw, collection.QueryOptions{
		TopN:      topN,
		Threshold: threshold,
		Filter:    filter,
	})
	if err != nil {
		return err
	}

	gray := color.New(color.FgHiBlack)
	gray.Printf("%d match(es) above threshold %.2f\n", res.TotalMatches, threshold)

	if len(res.Matches) == 0 {
		ui.ShowWarning("No results")
		return nil
	}

	for i, m := range res.Matches {
		ui.ShowResult(i+1, m.IdentityKey, m.Score)
	}

	top := res.Matches[0]
	ui.ShowSuccess(fmt.Sprintf("Best match: %s (score %.4f)", top.IdentityKey, top.Score))
	return nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	entries, err := os.ReadDir(args[0])
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	col, closeFn, err := openCollection(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	var stored, skipped, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(args[0], entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			ui.ShowWarning(fmt.Sprintf("%s: %v", entry.Name(), err))
			failed++
			continue
		}

		meta := record.Metadata{
			"extension": record.String(filepath.Ext(entry.Name())),
		}

		outcome, err := col.InsertImage(ctx, entry.Name(), raw, meta)
		if err != nil {
			ui.ShowWarning(fmt.Sprintf("%s: %v", entry.Name(), err))
			failed++
			continue
		}

		if outcome == storage.DuplicateIgnored {
			if debug {
				fmt.Fprintf(os.Stderr, "[DEBUG] %s already indexed, skipped\n", entry.Name())
			}
			skipped++
			continue
		}
		stored++
	}

	ui.ShowSuccess(fmt.Sprintf("Indexed %d image(s) into %q (%d duplicate(s) skipped, %d failed)",
		stored, col.Name(), skipped, failed))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := server.LoadSettings()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		settings.Addr = serveAddr
	}
	if dbPath != "" {
		settings.DBPath = dbPath
	}

	embedder, err := embeddings.NewEmbedder(settings.EmbedderConfig())
	if err != nil {
		return err
	}

	store, err := storage.OpenSQLite(settings.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	return server.New(store, embedder).ListenAndServe(settings.Addr)
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if serverURL != "" {
		ui.ShowError("The remote backend does not support reset")
		return storage.ErrNotSupported
	}

	col, closeFn, err := openCollection(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if !forceYes {
		ok, err := ui.PromptYesNo(fmt.Sprintf("Drop all records in %q?", col.Name()), false)
		if err != nil {
			return err
		}
		if !ok {
			ui.ShowInfo("Cancelled")
			return nil
		}
	}

	if err := col.Reset(ctx); err != nil {
		if errors.Is(err, storage.ErrNotSupported) {
			ui.ShowError("The remote backend does not support reset")
		}
		return err
	}

	ui.ShowSuccess(fmt.Sprintf("Collection %q reset", col.Name()))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	path := dbPath
	if path == "" {
		path = cfg.DBPath
	}

	store, err := storage.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer store.Close()

	names, err := store.ListCollections(ctx)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		ui.ShowInfo("No collections")
		return nil
	}

	sort.Strings(names)
	for _, name := range names {
		count, err := store.Count(ctx, name)
		if err != nil {
			return err
		}
		fmt.Printf("  %s (%d record(s))\n", name, count)
	}
	return nil
}

func runConfigure(cmd *cobra.Command, args []string) error {
	ui.ShowSection("imgvec configuration")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	cfg.Collection, err = ui.PromptInput("Default collection name:", cfg.Collection)
	if err != nil {
		return err
	}
	if err := record.ValidateName(cfg.Collection); err != nil {
		ui.ShowError(err.Error())
		return err
	}

	cfg.DBPath, err = ui.PromptInput("SQLite database path:", cfg.DBPath)
	if err != nil {
		return err
	}

	useRemote, err := ui.PromptYesNo("Query a remote imgvec server by default?", cfg.ServerURL != "")
	if err != nil {
		return err
	}
	if useRemote {
		cfg.ServerURL, err = ui.PromptInput("Server URL:", cfg.ServerURL)
		if err != nil {
			return err
		}
	} else {
		cfg.ServerURL = ""
	}

	provider, err := ui.ConfigureProvider()
	if err != nil {
		return err
	}
	cfg.Embedding.Provider = provider

	switch provider {
	case "ollama":
		cfg.Embedding.OllamaURL, err = ui.PromptInput("Ollama URL:", defaultString(cfg.Embedding.OllamaURL, "http://localhost:11434"))
		if err != nil {
			return err
		}
		cfg.Embedding.OllamaModel, err = ui.PromptInput("Ollama model:", defaultString(cfg.Embedding.OllamaModel, "llava"))
		if err != nil {
			return err
		}
	case "clip":
		cfg.Embedding.CLIPURL, err = ui.PromptInput("CLIP service URL:", cfg.Embedding.CLIPURL)
		if err != nil {
			return err
		}
		cfg.Embedding.CLIPKey, err = ui.PromptPassword("CLIP service API key (empty for none):")
		if err != nil {
			return err
		}
		if cfg.Embedding.CLIPKey != "" {
			ui.ShowWarning("API key will be saved to ~/.imgvec/config.yaml (0600 perms)")
		}
	}

	if err := config.Save(cfg); err != nil {
		return err
	}

	path, _ := config.GetConfigPath()
	ui.ShowSuccess(fmt.Sprintf("Configuration saved to %s", path))
	return nil
}

// parseFilter turns repeated key=value flags into a metadata filter.
// Values that parse as booleans or numbers are typed accordingly;
// everything else stays a string.
func parseFilter(kvs []string) (record.Filter, error) {
	if len(kvs) == 0 {
		return nil, nil
	}

	filter := record.Filter{}
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --where %q: expected key=value", kv)
		}
		filter[key] = parseScalar(value)
	}
	return filter, nil
}

func parseScalar(s string) record.Value {
	switch s {
	case "true":
		return record.Boolean(true)
	case "false":
		return record.Boolean(false)
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return record.Number(n)
	}
	return record.String(s)
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
