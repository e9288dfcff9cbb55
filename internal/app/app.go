package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"maildigest/internal/calendar"
	"maildigest/internal/config"
	"maildigest/internal/digest"
	"maildigest/internal/domain"
	"maildigest/internal/infrastructure/dates"
	"maildigest/internal/infrastructure/gmail"
	"maildigest/internal/infrastructure/googleauth"
	"maildigest/internal/infrastructure/googlecal"
	"maildigest/internal/infrastructure/llm"
	"maildigest/internal/infrastructure/scheduler"
	"maildigest/internal/infrastructure/storage"
	"maildigest/internal/infrastructure/telegram"
	"maildigest/internal/logging"
	"maildigest/internal/ports"
	"maildigest/internal/summarize"
	"maildigest/internal/urgency"
	"maildigest/internal/usecase"
)

const sweepInterval = time.Minute

// Application wires configuration to adapters, the digest pipeline, and
// the recurring jobs.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	db   *sql.DB
	bot  *telegram.Bot
	jobs *usecase.Jobs
}

// New builds a runnable application. Optional collaborators degrade to
// nil when unconfigured: the digest still works without Postgres, a
// calendar, or remote summarizers.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	// Keep interface values nil when the store is absent; a typed nil
	// would defeat the adapters' nil checks.
	var (
		senderStore ports.ImportantSenderStore
		history     ports.DigestHistory
	)
	if store := a.openStore(ctx); store != nil {
		senderStore = store
		history = store
	}
	mailbox, cal := a.googleServices(ctx, senderStore)
	if mailbox == nil {
		return nil, fmt.Errorf("gmail is required: configure credentialsFile and tokenFile")
	}

	extract := dates.NewParser()
	chain := a.buildChain(baseLogger)

	scorer := urgency.NewScorer(mailbox, extract,
		logging.Component(baseLogger, "urgency"),
		urgency.Options{
			Keywords:        cfg.Urgency.Keywords,
			DeadlineWindow:  cfg.Urgency.DeadlineWindow(),
			ThreadThreshold: cfg.Urgency.ThreadActivityThreshold,
		})
	tagger := calendar.NewTagger(extract, logging.Component(baseLogger, "calendar"))
	builder := digest.NewBuilder(chain, logging.Component(baseLogger, "builder"), digest.BuilderOptions{
		GroupThreshold:   cfg.Digest.GroupThreshold,
		ItemMaxChars:     cfg.Summary.ItemMaxChars,
		CombinedMaxChars: cfg.Summary.CombinedMaxChars,
	})
	renderer := digest.NewRenderer(cfg.Digest.BlockLimit)
	manager := digest.NewManager(cfg.Digest.SessionTTL(), logging.Component(baseLogger, "sessions"))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Mailbox:    mailbox,
		Calendar:   cal,
		History:    history,
		Summarizer: chain,
		Scorer:     scorer,
		Detector:   tagger,
		Builder:    builder,
		Renderer:   renderer,
		Manager:    manager,
		Options: usecase.Options{
			ItemMaxChars: cfg.Summary.ItemMaxChars,
			EventWindow:  cfg.Digest.EventWindow(),
			ForwardTo:    cfg.Gmail.ForwardTo,
		},
		Logger: logging.Component(baseLogger, "pipeline"),
	})

	transport := telegram.NewTransport(cfg.Telegram.BotToken)
	a.bot = telegram.NewBot(transport, pipeline, cfg.Telegram.ChatID,
		logging.Component(baseLogger, "bot"))

	watcher := usecase.NewAlertWatcher(mailbox, transport, cfg.Telegram.ChatID,
		cfg.Gmail.ForwardTo, logging.Component(baseLogger, "alerts"))
	a.jobs = usecase.NewJobs(pipeline, watcher, transport,
		scheduler.NewTickerScheduler(cfg.Digest.Interval(), false),
		scheduler.NewTickerScheduler(cfg.Digest.AlertInterval(), false),
		scheduler.NewTickerScheduler(sweepInterval, false),
		cfg.Telegram.ChatID,
		logging.Component(baseLogger, "jobs"))

	return a, nil
}

// Run starts the recurring jobs and blocks on the bot loop until the
// context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.jobs.Start(ctx); err != nil {
		return fmt.Errorf("start jobs: %w", err)
	}
	defer a.jobs.Stop(context.Background())
	defer a.closeDB()

	a.logger.Info("maildigest running",
		"chat", a.cfg.Telegram.ChatID,
		"digest_interval", a.cfg.Digest.Interval(),
		"session_ttl", a.cfg.Digest.SessionTTL())
	return a.bot.Run(ctx)
}

func (a *Application) openStore(ctx context.Context) *storage.PostgresRepository {
	if a.cfg.Database.DSN == "" {
		a.logger.Info("no database configured, history disabled")
		return nil
	}
	db, err := sql.Open("postgres", a.cfg.Database.DSN)
	if err != nil {
		a.logger.Warn("opening postgres failed, history disabled", "error", err)
		return nil
	}
	if err := db.PingContext(ctx); err != nil {
		a.logger.Warn("postgres unreachable, history disabled", "error", err)
		_ = db.Close()
		return nil
	}
	a.db = db

	repo := storage.NewPostgresRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		a.logger.Warn("schema setup failed, history disabled", "error", err)
		return nil
	}
	return repo
}

func (a *Application) googleServices(ctx context.Context, store ports.ImportantSenderStore) (ports.Mailbox, ports.Calendar) {
	client, err := googleauth.Client(ctx, a.cfg.Gmail.CredentialsFile, a.cfg.Gmail.TokenFile)
	if err != nil {
		a.logger.Error("google auth failed", "error", err)
		return nil, nil
	}

	mailbox, err := gmail.NewService(ctx, client, a.cfg.Gmail, store,
		logging.Component(a.logger, "gmail"))
	if err != nil {
		a.logger.Error("gmail setup failed", "error", err)
		return nil, nil
	}

	cal, err := googlecal.NewService(ctx, client)
	if err != nil {
		a.logger.Warn("calendar setup failed, conflict tagging disabled", "error", err)
		return mailbox, nil
	}
	return mailbox, cal
}

// buildChain assembles the provider fallback order: remote providers when
// their keys are present, then the offline tiers that always succeed.
func (a *Application) buildChain(baseLogger *slog.Logger) *summarize.Chain {
	var entries []summarize.Entry
	if a.cfg.Anthropic.APIKey != "" {
		entries = append(entries, summarize.Entry{
			Slot:   domain.ProviderPrimary,
			Client: llm.NewAnthropicClient(a.cfg.Anthropic),
		})
	}
	if a.cfg.OpenAI.APIKey != "" {
		entries = append(entries, summarize.Entry{
			Slot:   domain.ProviderSecondary,
			Client: llm.NewOpenAIClient(a.cfg.OpenAI),
		})
	}
	entries = append(entries,
		summarize.Entry{Slot: domain.ProviderLocal, Client: summarize.NewLocalSummarizer(a.cfg.Summary.LocalSentences)},
		summarize.Entry{Slot: domain.ProviderHeuristic, Client: summarize.NewHeadlineSummarizer(a.cfg.Summary.HeuristicSentences)},
	)
	return summarize.NewChain(entries, a.cfg.Summary.ProviderTimeout(),
		logging.Component(baseLogger, "summarize"))
}

func (a *Application) closeDB() {
	if a.db != nil {
		_ = a.db.Close()
	}
}
