package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prophecy-labs/prophecyd/internal/agent"
	s3blob "github.com/prophecy-labs/prophecyd/internal/blob/s3"
	"github.com/prophecy-labs/prophecyd/internal/cache/local"
	"github.com/prophecy-labs/prophecyd/internal/cache/redis"
	"github.com/prophecy-labs/prophecyd/internal/cas"
	"github.com/prophecy-labs/prophecyd/internal/config"
	"github.com/prophecy-labs/prophecyd/internal/crypto"
	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/genai"
	"github.com/prophecy-labs/prophecyd/internal/ledger"
	"github.com/prophecy-labs/prophecyd/internal/logstream"
	"github.com/prophecy-labs/prophecyd/internal/notify"
	"github.com/prophecy-labs/prophecyd/internal/reconsider"
	"github.com/prophecy-labs/prophecyd/internal/resolver"
	"github.com/prophecy-labs/prophecyd/internal/settle"
	"github.com/prophecy-labs/prophecyd/internal/store/postgres"
	"github.com/prophecy-labs/prophecyd/internal/transcript"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	Markets          domain.MarketStore
	Evidence         domain.EvidenceStore
	Transcripts      domain.TranscriptStore
	Distributions    domain.DistributionStore
	Reconsiderations domain.ReconsiderationStore
	Audit            domain.AuditStore

	// Coordination
	Locks   domain.LockManager
	Limiter domain.RateLimiter
	Bus     domain.SignalBus
	Logs    domain.LogStore

	// Blob storage (nil unless s3.enabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	// Resolution pipeline
	Workflow    *resolver.Workflow
	Scheduler   *resolver.Scheduler
	Executor    *settle.Executor
	Distributor *settle.Distributor
	Anchorer    *transcript.Anchorer
	Reconsider  *reconsider.Orchestrator

	// Notifications
	Notifier *notify.Notifier

	// Raw clients, kept for health checks.
	PG    *postgres.Client
	Redis *redis.Client
	S3    *s3blob.Client
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PG = pgClient
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Evidence = postgres.NewEvidenceStore(pool)
	deps.Transcripts = postgres.NewTranscriptStore(pool)
	deps.Distributions = postgres.NewDistributionStore(pool)
	deps.Reconsiderations = postgres.NewReconsiderationStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	// --- Coordination: Redis, or in-process when no addr is configured ---
	var narration domain.LogStore
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		narration = redis.NewLogBuffer(redisClient, cfg.Resolver.LogWindow)
	} else {
		logger.Warn("redis.addr is empty, using in-process coordination; run a single instance only")
		deps.Locks = local.NewLockManager()
		deps.Limiter = local.NewRateLimiter()
		deps.Bus = local.NewSignalBus()
		narration = logstream.NewRing(cfg.Resolver.LogWindow)
	}
	deps.Logs = logstream.NewBroadcast(narration, deps.Bus, logger)

	// --- S3 cold archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.S3 = s3Client
		deps.BlobWriter = writer
		deps.BlobReader = reader
		deps.Archiver = s3blob.NewArchiver(writer, reader, deps.Audit)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Ledger authority ---
	seed, err := crypto.LoadSeed(crypto.KeyConfig{
		RawSeed:          cfg.Ledger.AuthorityKey,
		EncryptedKeyPath: cfg.Ledger.EncryptedKeyPath,
		KeyPassword:      cfg.Ledger.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: authority key: %w", err)
	}
	signer := crypto.NewSigner(seed)
	settler := ledger.NewClient(cfg.Ledger.RPCURL, cfg.Ledger.ProgramID, signer, cfg.Ledger.RequestTimeout.Duration)

	// --- Generation agents ---
	gen := genai.New(genai.Config{
		BaseURL:      cfg.Generation.BaseURL,
		APIKey:       cfg.Generation.APIKey,
		Model:        cfg.Generation.Model,
		MaxTokens:    cfg.Generation.MaxTokens,
		Temperature:  cfg.Generation.Temperature,
		PacingDelay:  cfg.Generation.PacingDelay.Duration,
		QuotaBackoff: cfg.Generation.QuotaBackoff.Duration,
		RetryBackoff: cfg.Generation.RetryBackoff.Duration,
		MaxRetries:   cfg.Generation.MaxRetries,
	}, logger)
	analyzer := agent.NewAnalyzer(gen, deps.Logs, logger)
	judge := agent.NewJudge(gen, deps.Logs, logger)
	reconJudge := agent.NewReconsiderationJudge(gen, logger)

	// --- Resolution pipeline ---
	pins := cas.NewIPFSClient(cfg.IPFS.APIURL, cfg.IPFS.Gateway, cfg.IPFS.PinTimeout.Duration)
	deps.Anchorer = transcript.NewAnchorer(pins, deps.Transcripts, deps.BlobWriter, logger).
		WithNotifier(deps.Notifier)
	deps.Distributor = settle.NewDistributor(settler, deps.Distributions, deps.Audit, deps.Logs,
		cfg.Ledger.DisburseDelay.Duration, logger)
	deps.Executor = settle.NewExecutor(settler, deps.Markets, deps.Audit, deps.Logs,
		deps.Limiter, deps.Distributor, logger).
		WithNotifier(deps.Notifier)
	deps.Workflow = resolver.NewWorkflow(resolver.Config{
		Markets:       deps.Markets,
		Evidence:      deps.Evidence,
		Analyzer:      analyzer,
		Judge:         judge,
		Anchorer:      deps.Anchorer,
		Executor:      deps.Executor,
		Locks:         deps.Locks,
		Logs:          deps.Logs,
		ProgramID:     cfg.Ledger.ProgramID,
		MaxIterations: cfg.Resolver.MaxIterations,
		LockTTL:       cfg.Resolver.LockTTL.Duration,
		Logger:        logger,
	})
	deps.Scheduler = resolver.NewScheduler(deps.Workflow, cfg.Resolver.Workers, logger)
	closers = append(closers, func() { _ = deps.Scheduler.Close() })
	deps.Reconsider = reconsider.NewOrchestrator(deps.Markets, deps.Transcripts,
		deps.Reconsiderations, analyzer, reconJudge, deps.Logs, logger).
		WithNotifier(deps.Notifier)

	return deps, cleanup, nil
}
