package app

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkurian/surtitle/internal/eventlog"
	"github.com/dkurian/surtitle/internal/httpapi"
	"github.com/dkurian/surtitle/internal/jobs"
	"github.com/dkurian/surtitle/internal/notifications"
	"github.com/dkurian/surtitle/internal/pipeline"
	"github.com/dkurian/surtitle/internal/store"
	"github.com/dkurian/surtitle/internal/stt"
	"github.com/dkurian/surtitle/internal/translate"
	"github.com/dkurian/surtitle/internal/tts"
)

type App struct {
	cfg        Config
	logger     *log.Logger
	db         *pgxpool.Pool
	store      *store.Store
	eventLog   *eventlog.Logger
	httpClient *http.Client // Shared HTTP client with connection pooling for provider calls
	pipe       *pipeline.Coordinator
	tts        tts.Client
	discord    *notifications.Discord
	sessions   *httpapi.SessionRegistry
	retention  *jobs.RetentionJob
	router     *httpapi.Router

	overflows atomic.Int64
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := store.New(db)
	el := eventlog.New(db)

	// Migrations are applied externally by the CI deploy job (docker exec psql).
	// No automatic migration runner at startup.

	// Shared HTTP client with connection pooling. Every segment costs one
	// recognition call and one translation call, so keeping TCP connections
	// alive to the provider hosts matters for per-segment latency.
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		store:      s,
		eventLog:   el,
		httpClient: httpClient,
		discord:    notifications.NewDiscord(cfg.DiscordWebhookURL, logger),
		sessions:   httpapi.NewSessionRegistry(),
		retention:  jobs.NewRetentionJob(s, logger, cfg.RecordRetention, cfg.RetentionInterval),
	}

	recognizer, err := a.buildRecognizer()
	if err != nil {
		db.Close()
		return nil, err
	}
	translator, err := a.buildTranslator()
	if err != nil {
		db.Close()
		return nil, err
	}

	if cfg.ElevenLabsAPIKey != "" {
		a.tts = tts.NewElevenLabsClient(tts.ElevenLabsConfig{
			APIKey:       cfg.ElevenLabsAPIKey,
			VoiceID:      cfg.TTSVoiceID,
			ModelID:      cfg.TTSModelID,
			OutputFormat: cfg.TTSOutputFormat,
			Stability:    cfg.TTSStability,
			Similarity:   cfg.TTSSimilarity,
			HTTPClient:   httpClient,
		})
	}

	a.pipe = pipeline.NewCoordinator(pipeline.Config{
		MaxPending:       cfg.MaxPending,
		RecognizeWorkers: cfg.RecognizeWorkers,
		TranslateWorkers: cfg.TranslateWorkers,
		RecognizeTimeout: cfg.RecognizeTimeout,
		TranslateTimeout: cfg.TranslateTimeout,
		GraceWindow:      cfg.GraceWindow,
		SourceLang:       cfg.SourceLang,
		TargetLang:       cfg.TargetLang,
	}, recognizer, translator, pipeline.Hooks{OnEvent: a.onPipelineEvent}, logger)

	return a, nil
}

func (a *App) buildRecognizer() (stt.Recognizer, error) {
	switch a.cfg.STTBackend {
	case "google", "":
		if a.cfg.GoogleAPIKey == "" {
			return nil, errors.New("GOOGLE_API_KEY is required for the google STT backend")
		}
		return stt.NewGoogleClient(stt.GoogleConfig{
			APIKey:     a.cfg.GoogleAPIKey,
			SampleRate: a.cfg.SampleRate,
			HTTPClient: a.httpClient,
		}), nil
	case "whisper":
		if a.cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the whisper STT backend")
		}
		return stt.NewWhisperClient(stt.WhisperConfig{
			APIKey:     a.cfg.OpenAIAPIKey,
			Model:      a.cfg.WhisperModel,
			HTTPClient: a.httpClient,
		}), nil
	default:
		return nil, errors.New("unknown STT_BACKEND: " + a.cfg.STTBackend)
	}
}

func (a *App) buildTranslator() (translate.Translator, error) {
	switch a.cfg.TranslateBackend {
	case "google", "":
		if a.cfg.GoogleAPIKey == "" {
			return nil, errors.New("GOOGLE_API_KEY is required for the google translate backend")
		}
		return translate.NewGoogleClient(translate.GoogleConfig{
			APIKey:     a.cfg.GoogleAPIKey,
			HTTPClient: a.httpClient,
		}), nil
	case "openai":
		if a.cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the openai translate backend")
		}
		return translate.NewOpenAIClient(translate.OpenAIConfig{
			APIKey:     a.cfg.OpenAIAPIKey,
			Model:      a.cfg.TranslateModel,
			HTTPClient: a.httpClient,
		}), nil
	default:
		return nil, errors.New("unknown TRANSLATE_BACKEND: " + a.cfg.TranslateBackend)
	}
}

// Router builds the HTTP surface. Call once, before Start.
func (a *App) Router() *httpapi.Router {
	a.router = httpapi.NewRouter(httpapi.RouterConfig{
		PublicBaseURL: a.cfg.PublicBaseURL,
		IngestKey:     a.cfg.IngestKey,
		OperatorKey:   a.cfg.OperatorKey,
		JWTSecret:     a.cfg.JWTSecret,
		JWTExpiry:     a.cfg.JWTExpiry,
		SourceLang:    a.cfg.SourceLang,
		TargetLang:    a.cfg.TargetLang,
	}, a.logger, a.store, a.eventLog, a.pipe, a.tts, a.discord, a.sessions)
	return a.router
}

// Sessions exposes the connection registry for graceful shutdown.
func (a *App) Sessions() *httpapi.SessionRegistry { return a.sessions }

// Pipeline exposes the coordinator for graceful shutdown.
func (a *App) Pipeline() *pipeline.Coordinator { return a.pipe }

// Start launches the pipeline workers, the history persister and the
// retention job. Requires Router to have been called.
func (a *App) Start(ctx context.Context) {
	a.pipe.Start(ctx)
	go a.persistRecords(ctx)
	a.retention.Start()
}

// persistRecords subscribes to the ordered output stream and writes every
// released record to the database. Runs as an ordinary subscriber, so a
// slow database can never stall the displays.
func (a *App) persistRecords(ctx context.Context) {
	sub := a.pipe.Subscribe()
	defer a.pipe.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-sub.Records():
			if !ok {
				return
			}
			sessionID := a.activeSession()
			if sessionID == "" {
				continue
			}
			row := store.Record{
				SessionID:   sessionID,
				Sequence:    rec.Sequence,
				Status:      string(rec.Status),
				Transcript:  rec.Transcript,
				Translation: rec.Translation,
				LatencyMs:   rec.LatencyMs,
				DurationMs:  rec.Duration.Milliseconds(),
				EmittedAt:   rec.EmittedAt,
			}
			if rec.Status == pipeline.StatusOk {
				conf := rec.Confidence
				row.Confidence = &conf
			}
			insertCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.store.InsertRecord(insertCtx, row); err != nil {
				a.logger.Printf("persist: failed to store record %d: %v", rec.Sequence, err)
			}
			cancel()
		}
	}
}

func (a *App) activeSession() string {
	if a.router == nil {
		return ""
	}
	return a.router.ActiveSession()
}

// onPipelineEvent forwards pipeline lifecycle events to the event log and
// raises operator alerts for sustained overflow. Must not block: it runs on
// pipeline goroutines, sometimes under the sequencer lock.
func (a *App) onPipelineEvent(event string, sequence int64, data map[string]any) {
	sessionID := a.activeSession()

	eventType := eventlog.EventType(event)
	if event == pipeline.EventRecordReleased {
		if status, _ := data["status"].(string); status == string(pipeline.StatusForceDropped) {
			eventType = eventlog.EventForceDropped
		}
	}

	if data == nil {
		data = map[string]any{}
	}
	data["sequence"] = sequence
	a.eventLog.LogAsync(sessionID, eventType, data)

	if event == pipeline.EventOverflow {
		n := a.overflows.Add(1)
		// Alert on the first drop, then every 50th, so a long overflow
		// episode does not flood the webhook.
		if n == 1 || n%50 == 0 {
			a.discord.NotifyOverflow(context.Background(), sessionID, n)
		}
	}
}

func (a *App) Close() error {
	a.retention.Stop()
	a.pipe.Close()
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
