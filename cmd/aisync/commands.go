package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/poiesic/aisync"
	"github.com/poiesic/aisync/api"
	"github.com/poiesic/aisync/config"
	"github.com/poiesic/aisync/core"
	"github.com/poiesic/aisync/events"
	"github.com/poiesic/aisync/importer"
	"github.com/poiesic/aisync/ingestion"
	"github.com/poiesic/aisync/reembed"
	"github.com/urfave/cli/v2"
)

// databaseOptions is appended to every opened database. Tests use it to
// swap in a mock provider.
var databaseOptions []aisync.DatabaseOption

func openDatabase(cfg *config.Config) (*aisync.Database, error) {
	opts := []aisync.DatabaseOption{
		aisync.WithAIConfig(cfg.AIConfig()),
		aisync.WithChunking(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap),
		aisync.WithRateLimit(cfg.Sync.BatchSize, cfg.Sync.BatchDelay),
		aisync.WithEmbeddingRetries(cfg.Embedding.MaxRetries),
		aisync.WithIngestionOptions(ingestion.WithUpdateOnChange(cfg.Sync.UpdateOnChange)),
		aisync.WithTokenModel(cfg.Chunking.TokenModel),
	}
	db, err := aisync.NewDatabase(cfg.Database.Path, append(opts, databaseOptions...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// newOrchestrator builds a sync orchestrator, publishing results to NATS
// when a URL is configured. The returned func releases everything.
func newOrchestrator(db *aisync.Database, cfg *config.Config, concurrency int) (*importer.Orchestrator, func(), error) {
	opts := []importer.Option{importer.WithConcurrency(concurrency)}

	var publisher *events.Publisher
	if cfg.NATS.URL != "" {
		var err error
		publisher, err = events.Connect(cfg.NATS.URL, cfg.NATS.Token, slog.Default())
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, importer.WithNotifier(publisher))
	}

	orchestrator, err := db.NewOrchestrator(opts...)
	if err != nil {
		if publisher != nil {
			publisher.Close()
		}
		return nil, nil, err
	}
	release := func() {
		orchestrator.Release()
		if publisher != nil {
			publisher.Close()
		}
	}
	return orchestrator, release, nil
}

func importCommand(c *cli.Context) error {
	cfg := appConfig(c)
	if c.NArg() != 1 {
		return errors.New("import requires exactly one FILE argument")
	}
	source := core.Source(strings.ToUpper(c.String("source")))
	if err := core.ValidateSource(source); err != nil {
		return err
	}

	data, err := readInput(c.Args().First(), c.App.Reader)
	if err != nil {
		return err
	}

	concurrency := cfg.Sync.Concurrency
	if c.IsSet("concurrency") {
		concurrency = c.Int("concurrency")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	orchestrator, release, err := newOrchestrator(db, cfg, concurrency)
	if err != nil {
		return err
	}
	defer release()

	result, err := orchestrator.SyncFromJSON(c.Context, cfg.Organization, source, string(data))
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	return printJSON(c.App.Writer, result)
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	return data, nil
}

func searchCommand(c *cli.Context) error {
	cfg := appConfig(c)
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("search requires a QUERY argument")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := db.Service().SearchConversations(c.Context, cfg.Organization, query, ingestion.SearchOptions{
		Limit:   c.Int("limit"),
		Source:  strings.ToUpper(c.String("source")),
		AppName: c.String("app"),
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "No matching conversations.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(c.App.Writer, "%d. [%.3f] %s (%s) %s\n", i+1, r.Similarity, r.Title, r.Source, r.ConversationID)
		fmt.Fprintf(c.App.Writer, "   %s\n", excerpt(r.Content, 160))
	}
	return nil
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func listCommand(c *cli.Context) error {
	cfg := appConfig(c)
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	conversations, err := db.Service().GetConversations(c.Context, cfg.Organization, ingestion.ListOptions{
		Source:  strings.ToUpper(c.String("source")),
		AppName: c.String("app"),
		Skip:    c.Int("skip"),
		Take:    c.Int("take"),
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tAPP\tCHUNKS\tIMPORTED\tTITLE")
	for _, conv := range conversations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			conv.ID, conv.Source, conv.AppName, conv.ChunkCount,
			conv.ImportedAt.Local().Format("2006-01-02 15:04"), conv.Title)
	}
	return w.Flush()
}

func showCommand(c *cli.Context) error {
	cfg := appConfig(c)
	if c.NArg() != 1 {
		return errors.New("show requires an ID argument")
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	detail, err := db.Service().GetConversation(c.Context, cfg.Organization, c.Args().First())
	if err != nil {
		return err
	}
	if detail == nil {
		return fmt.Errorf("conversation %s not found", c.Args().First())
	}

	fmt.Fprintf(c.App.Writer, "%s\n%s", detail.Title, strings.Repeat("=", len([]rune(detail.Title))))
	fmt.Fprintf(c.App.Writer, "\nSource: %s  App: %s  Messages: %d  Chunks: %d\n\n",
		detail.Source, detail.AppName, detail.MessageCount, detail.ChunkCount)
	fmt.Fprintln(c.App.Writer, detail.Content)
	return nil
}

func deleteCommand(c *cli.Context) error {
	cfg := appConfig(c)
	if c.NArg() != 1 {
		return errors.New("delete requires an ID argument")
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	deleted, err := db.Service().DeleteConversation(c.Context, cfg.Organization, c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted %d chunks.\n", deleted)
	return nil
}

func deleteSourceCommand(c *cli.Context) error {
	cfg := appConfig(c)
	if c.NArg() != 1 {
		return errors.New("delete-source requires a SOURCE argument")
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	source := core.Source(strings.ToUpper(c.Args().First()))
	deleted, err := db.Service().DeleteBySource(c.Context, cfg.Organization, source)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted %d chunks from %s.\n", deleted, source)
	return nil
}

func summaryCommand(c *cli.Context) error {
	cfg := appConfig(c)
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	summary, err := db.Service().GetSummary(c.Context, cfg.Organization)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, summary)
}

func serveCommand(c *cli.Context) error {
	cfg := appConfig(c)
	addr := cfg.Server.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	orchestrator, release, err := newOrchestrator(db, cfg, cfg.Sync.Concurrency)
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(db.Service(), orchestrator, api.WithAddr(addr))
	return server.ListenAndServe(ctx)
}

func reembedCommand(c *cli.Context) error {
	cfg := appConfig(c)

	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		BatchDelay:     c.Duration("batch-delay"),
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.BatchDelay < 0 {
		return fmt.Errorf("batch-delay cannot be negative")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reembedder, err := db.NewReembedder(reembedConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}
	if _, err := reembedder.Run(c.Context); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
