package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/poiesic/coverwise"
	"github.com/poiesic/coverwise/ai"
	"github.com/poiesic/coverwise/ai/factory"
	"github.com/poiesic/coverwise/core"
	"github.com/poiesic/coverwise/coverage"
	"github.com/poiesic/coverwise/ingestion"
	"github.com/poiesic/coverwise/policy"
	"github.com/poiesic/coverwise/reembed"
	"github.com/poiesic/coverwise/search"
	"github.com/poiesic/coverwise/storage/badger"
	"github.com/urfave/cli/v2"
)

func openService(c *cli.Context) (*coverwise.Service, error) {
	cfg := configFrom(c)
	cfg.DataDir = c.String("db")
	return coverwise.NewService(c.Context, coverwise.WithConfig(cfg), coverwise.WithLogger(slog.Default()))
}

func checkCommand(c *cli.Context) error {
	items := c.Args().Slice()
	if len(items) == 0 {
		return errors.New("at least one item is required")
	}
	out := c.App.Writer
	asJSON := c.Bool("json")

	path := c.String("policy")
	if path == "" {
		if c.Bool("watch") {
			return errors.New("--watch requires --policy")
		}
		return printChecks(out, policy.Default(), items, asJSON)
	}
	if !c.Bool("watch") {
		doc, err := policy.Load(path)
		if err != nil {
			return err
		}
		return printChecks(out, doc, items, asJSON)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := policy.NewWatcher(path, func(doc *core.PolicyDocument) {
		if err := printChecks(out, doc, items, asJSON); err != nil {
			slog.Error("error checking items", "err", err)
		}
	})
	if err != nil {
		return err
	}
	if err := printChecks(out, w.Current(), items, asJSON); err != nil {
		w.Close()
		return err
	}
	return w.Run(ctx)
}

func printChecks(out io.Writer, doc *core.PolicyDocument, items []string, asJSON bool) error {
	engine, err := coverage.NewEngine()
	if err != nil {
		return err
	}
	if err := engine.Load(doc); err != nil {
		return err
	}
	results, err := engine.CheckMany(items)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	fmt.Fprintf(out, "Policy %s (%s)\n", doc.Meta.ID, doc.Meta.Status)
	for _, r := range results {
		fmt.Fprintf(out, "  %s: %s", r.ItemName, r.Status)
		if r.Category != "" {
			fmt.Fprintf(out, " [%s]", r.Category)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "    %s\n", r.Reason)
		for _, cond := range r.Conditions {
			fmt.Fprintf(out, "    - %s\n", cond)
		}
	}
	return nil
}

func loadPolicyCommand(c *cli.Context) error {
	s, err := openService(c)
	if err != nil {
		return err
	}
	defer s.Close()

	doc, err := s.LoadPolicyFile(c.Context, c.String("policy"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Stored policy %s (%s, %d categories)\n", doc.Meta.ID, doc.Meta.Status, len(doc.Coverage))
	return nil
}

func ingestCommand(c *cli.Context) error {
	path := c.String("doc")
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	docID := c.String("document-id")
	if docID == "" {
		docID = filepath.Base(path)
	}

	s, err := openService(c)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.Ingest(c.Context, ingestion.Request{
		PolicyID:   c.String("policy-id"),
		DocumentID: docID,
		Text:       string(text),
		Category:   c.String("category"),
		PageNumber: c.Int("page"),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Ingested %s/%s: %d chunks, %d stored, %d replaced, %d failed, %d classifier fallbacks in %v\n",
		report.PolicyID, report.DocumentID, report.Chunks, report.Stored, report.Replaced,
		len(report.Failures), report.Fallbacks, report.Duration)
	for _, f := range report.Failures {
		fmt.Fprintf(c.App.ErrWriter, "  %v\n", f)
	}
	if report.Stored == 0 {
		return report.Err()
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("a query is required")
	}
	mode, err := search.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}

	s, err := openService(c)
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := s.Retrieve(c.Context, coverwise.Query{
		Text:     query,
		PolicyID: c.String("policy-id"),
		Mode:     mode,
		TopK:     c.Int("top-k"),
		MinScore: c.Float64("min-score"),
	})
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Found %d passages\n", len(results))
	for _, r := range results {
		fmt.Fprintf(out, "%d. [%.3f] %s (policy %s, %s)\n", r.Rank, r.FinalScore, r.ChunkID,
			r.Metadata[ingestion.MetaPolicyID], r.Metadata[ingestion.MetaChunkType])
		fmt.Fprintf(out, "   %s\n", strings.ReplaceAll(r.Text, "\n", " "))
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	ctx := c.Context
	dbPath := c.String("db")
	targetPath := c.String("target-db")
	if filepath.Clean(dbPath) == filepath.Clean(targetPath) {
		return errors.New("target-db must differ from db")
	}

	// Open source database
	source, err := badger.OpenBackend(dbPath, false)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer source.Close()

	sourceDims, err := badger.StoredDimensions(source)
	if err != nil {
		return fmt.Errorf("failed to read index dimensions: %w", err)
	}
	if sourceDims == 0 {
		return fmt.Errorf("no vector index in %s", dbPath)
	}
	sourceIndex, err := badger.NewVectorIndex(source, sourceDims)
	if err != nil {
		return err
	}

	// Create embedder
	cfg := configFrom(c)
	aiConfig := cfg.AIConfig()
	if p := c.String("provider"); p != "" {
		aiConfig.Provider = ai.ProviderKind(p)
	}
	if h := c.String("embedding-host"); h != "" {
		aiConfig.EmbeddingHost = h
	}
	aiConfig.EmbeddingModel = c.String("embedding-model")
	aiConfig.EmbeddingDimensions = c.Int("dimensions")

	provider, err := factory.NewProvider(aiConfig)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	defer provider.Close()

	// Open target database
	target, err := badger.OpenBackend(targetPath, false)
	if err != nil {
		return fmt.Errorf("failed to open target database: %w", err)
	}
	defer target.Close()

	targetIndex, err := badger.NewVectorIndex(target, aiConfig.EmbeddingDimensions)
	if err != nil {
		return err
	}
	if err := copyPolicies(c, source, target); err != nil {
		return err
	}

	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		MaxRetryDelay:  reembed.DefaultConfig().MaxRetryDelay,
		Concurrency:    c.Int("concurrency"),
		PolicyID:       c.String("policy-id"),
		Logger:         slog.Default(),
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}

	reembedder, err := reembed.NewReembedder(sourceIndex, targetIndex, provider.Embedder(), reembedConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Database: %s (%d dimensions)\n", dbPath, sourceDims)
	fmt.Fprintf(c.App.ErrWriter, "Target: %s (%d dimensions)\n", targetPath, aiConfig.EmbeddingDimensions)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n\n", aiConfig.EmbeddingModel)

	n, err := reembedder.Run(ctx)
	if err != nil {
		return fmt.Errorf("reembedding failed after %d chunks: %w", n, err)
	}
	fmt.Fprintf(c.App.Writer, "Reembedded %d chunks into %s\n", n, targetPath)
	return nil
}

// copyPolicies stores every structured policy of source in target so the
// new database is complete.
func copyPolicies(c *cli.Context, source, target *badger.Backend) error {
	docs, err := badger.NewPolicyRepository(source).ListPolicies(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list policies: %w", err)
	}
	repo := badger.NewPolicyRepository(target)
	for _, doc := range docs {
		if err := repo.SavePolicy(c.Context, doc); err != nil {
			return fmt.Errorf("failed to copy policy %s: %w", doc.Meta.ID, err)
		}
	}
	return nil
}
