package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/blocklist"
	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedding/cache"
	"docqa/internal/embedding/gemini"
	"docqa/internal/embedding/hashing"
	"docqa/internal/embedding/openai"
	"docqa/internal/extract"
	"docqa/internal/generation"
	gengemini "docqa/internal/generation/gemini"
	genopenai "docqa/internal/generation/openai"
	"docqa/internal/rerank"
	"docqa/internal/service"
	"docqa/internal/snapshot"
	"docqa/internal/store"
	"docqa/internal/vectorindex"
)

// app holds the assembled components of one process.
type app struct {
	cfg      *config.AppConfig
	store    *store.Store
	index    *vectorindex.Index
	pipeline *service.Pipeline
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// buildApp assembles the components. Missing generation credentials are fatal
// when answering is required and degrade to a failing generator otherwise.
func buildApp(ctx context.Context, cfg *config.AppConfig, answering bool) (*app, error) {
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{cfg: cfg, store: st, index: vectorindex.New(cfg.IndexDir)}

	ch, err := buildChunker(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	emb, err := buildEmbedder(ctx, cfg, st)
	if err != nil {
		a.Close()
		return nil, err
	}
	gen, err := buildGenerator(ctx, cfg, answering)
	if err != nil {
		a.Close()
		return nil, err
	}
	rr, err := buildReranker(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	snap, err := buildSnapshotter(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.pipeline = service.NewPipeline(service.Deps{
		Index:       a.index,
		Embedder:    emb,
		Chunker:     ch,
		Reranker:    rr,
		Generator:   gen,
		Extractor:   extract.NewRegistry(),
		Blocklist:   blocklist.New(cfg.Retrieval.Blocklist),
		Ledger:      st.Ledger(),
		Snapshotter: snap,
	}, service.Options{
		Candidates: cfg.Retrieval.Candidates,
		DefaultK:   cfg.Retrieval.DefaultK,
		MaxK:       cfg.Retrieval.MaxK,
	})
	logutil.GetLogger(ctx).Info("components assembled",
		zap.String("embedder", emb.ModelName()),
		zap.Int("dimension", emb.Dimension()),
		zap.String("generator", gen.Name()),
		zap.String("reranker", rr.Name()),
		zap.Bool("snapshot", snap != nil))
	return a, nil
}

func buildChunker(cfg *config.AppConfig) (domain.Chunker, error) {
	tok, err := chunker.NewTokenizer(cfg.Chunker.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("init tokenizer: %w", err)
	}
	return chunker.NewTokenChunker(tok, cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
}

func buildEmbedder(ctx context.Context, cfg *config.AppConfig, st *store.Store) (domain.Embedder, error) {
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "hashing":
		h, err := hashing.NewEmbedder(cfg.Embedder.Hashing.Dimension)
		if err != nil {
			return nil, err
		}
		emb = h
	case "openai":
		oc := cfg.Embedder.OpenAI
		client, err := openai.NewClient(ctx, openai.Config{
			BaseURL:    oc.BaseURL,
			APIKey:     config.Secret(oc.APIKeyEnv),
			Model:      oc.Model,
			Dimension:  oc.Dimension,
			BatchSize:  oc.BatchSize,
			Timeout:    time.Duration(oc.TimeoutSecs) * time.Second,
			MaxRetries: oc.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init: %w", err)
		}
		emb = client
	case "gemini":
		gc := cfg.Embedder.Gemini
		client, err := gemini.NewClient(ctx, gemini.Config{
			BaseURL:   gc.BaseURL,
			APIKey:    config.Secret(gc.APIKeyEnv),
			Model:     gc.Model,
			Dimension: gc.Dimension,
			BatchSize: gc.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embedder init: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
	if cfg.Embedder.Persistent {
		emb = cache.WrapPersistent(emb, st.EmbeddingCache())
	}
	return cache.WrapLRU(emb, cfg.Embedder.CacheSize, time.Duration(cfg.Embedder.CacheTTLSecs)*time.Second), nil
}

func buildGenerator(ctx context.Context, cfg *config.AppConfig, required bool) (domain.Generator, error) {
	timeout := time.Duration(cfg.Generator.TimeoutSecs) * time.Second
	var (
		gen domain.Generator
		err error
	)
	switch cfg.Generator.Type {
	case "groq", "openai":
		oc := cfg.Generator.OpenAI
		gen, err = genopenai.NewClient(genopenai.Config{
			Provider:    cfg.Generator.Type,
			BaseURL:     oc.BaseURL,
			APIKey:      config.Secret(oc.APIKeyEnv),
			Model:       oc.Model,
			Temperature: oc.Temperature,
			MaxTokens:   oc.MaxTokens,
			Timeout:     timeout,
			MaxRetries:  cfg.Generator.MaxRetries,
		})
	case "gemini":
		gc := cfg.Generator.Gemini
		gen, err = gengemini.NewClient(ctx, gengemini.Config{
			BaseURL:    gc.BaseURL,
			APIKey:     config.Secret(gc.APIKeyEnv),
			Model:      gc.Model,
			Timeout:    timeout,
			MaxRetries: cfg.Generator.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Generator.Type)
	}
	if errors.Is(err, generation.ErrUnavailable) && !required {
		logutil.GetLogger(ctx).Warn("generator unavailable", zap.String("type", cfg.Generator.Type), zap.Error(err))
		return unavailableGenerator{provider: cfg.Generator.Type, err: err}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s generator init: %w", cfg.Generator.Type, err)
	}
	return gen, nil
}

type unavailableGenerator struct {
	provider string
	err      error
}

func (g unavailableGenerator) Name() string { return g.provider + "/unavailable" }

func (g unavailableGenerator) Generate(context.Context, string, string) (string, error) {
	return "", &generation.Error{Provider: g.provider, Kind: generation.ProviderStatus, Err: g.err}
}

func buildReranker(cfg *config.AppConfig) (rerank.Reranker, error) {
	switch cfg.Reranker.Type {
	case "none":
		return rerank.NewMMR(cfg.Lambda()), nil
	case "tei":
		tc := cfg.Reranker.TEI
		scorer, err := rerank.NewTEIScorer(rerank.TEIConfig{
			URL:     tc.URL,
			APIKey:  config.Secret(tc.APIKeyEnv),
			Timeout: time.Duration(tc.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("tei reranker init: %w", err)
		}
		return rerank.NewCrossEncoder("tei", scorer), nil
	default:
		return nil, fmt.Errorf("unknown reranker: %s", cfg.Reranker.Type)
	}
}

// buildSnapshotter returns nil when snapshots are disabled.
func buildSnapshotter(ctx context.Context, cfg *config.AppConfig) (service.Snapshotter, error) {
	sc := cfg.Snapshot
	if !sc.Enabled {
		return nil, nil
	}
	s3store, err := snapshot.New(ctx, snapshot.Config{
		Endpoint:     sc.Endpoint,
		Region:       sc.Region,
		Bucket:       sc.Bucket,
		Prefix:       sc.Prefix,
		AccessKey:    config.Secret(sc.AccessKeyEnv),
		SecretKey:    config.Secret(sc.SecretKeyEnv),
		UsePathStyle: sc.UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot init: %w", err)
	}
	return s3store, nil
}
