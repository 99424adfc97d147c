package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"CommentInbox/internal/api"
	"CommentInbox/internal/classifier"
	"CommentInbox/internal/config"
	"CommentInbox/internal/domain"
	"CommentInbox/internal/infrastructure/graph"
	"CommentInbox/internal/infrastructure/llm"
	"CommentInbox/internal/infrastructure/scheduler"
	"CommentInbox/internal/infrastructure/storage"
	"CommentInbox/internal/logging"
	"CommentInbox/internal/ports"
	"CommentInbox/internal/usecase"
)

const shutdownTimeout = 5 * time.Second

// ErrNoPageSelected is returned when an operation needs stored page credentials.
var ErrNoPageSelected = errors.New("no page selected")

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg         config.Config
	logger      *slog.Logger
	pipeline    *usecase.Pipeline
	credentials *storage.CredentialStore
	pages       *graph.PageDirectory
}

// New builds the adapters and the pipeline. Close releases them.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	credentials, err := storage.Open(ctx, cfg.Storage, baseLogger)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	generator, err := newGenerator(ctx, cfg.Classifier, baseLogger)
	if err != nil {
		_ = credentials.Close()
		return nil, err
	}

	graphClient := graph.NewClient(cfg.Graph.BaseURL, &http.Client{Timeout: cfg.Graph.Timeout}, baseLogger.With("component", "graph"))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     graph.NewSource(graphClient),
		Classifier: classifier.New(generator, baseLogger),
		Replies:    graph.NewDispatcher(graphClient),
		Logger:     baseLogger,
		Options: usecase.Options{
			PageSize:        cfg.Inbox.PageSize,
			BatchSize:       cfg.Classifier.BatchSize,
			CancelAbandoned: cfg.Inbox.CancelAbandoned,
		},
	})

	return &Application{
		cfg:         cfg,
		logger:      baseLogger,
		pipeline:    pipeline,
		credentials: credentials,
		pages:       graph.NewPageDirectory(graphClient),
	}, nil
}

func newGenerator(ctx context.Context, cfg config.ClassifierConfig, logger *slog.Logger) (ports.TextGenerator, error) {
	registry := llm.NewRegistry()
	registry.Register(llm.NewGeminiClient(cfg, nil))

	if cfg.APIKey != "" {
		sdk, err := llm.NewGenAIClient(ctx, cfg, nil)
		if err != nil {
			logger.Warn("genai backend unavailable", "error", err)
		} else {
			registry.Register(sdk)
		}
	}

	generator, err := registry.Resolve(cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("select classifier backend: %w", err)
	}
	return generator, nil
}

// Pipeline exposes the classification pipeline.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Serve runs the operator console and the refresh loop until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	console, err := api.NewConsole(a.pipeline, a.credentials, a.logger)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           console.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	refresher := usecase.NewRefresher(
		scheduler.NewIntervalScheduler(a.cfg.Inbox.RefreshInterval),
		a.pipeline,
		a.credentials,
		a.logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("console listening", "addr", a.cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve console: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if a.cfg.Inbox.RefreshInterval <= 0 {
			refresher.Refresh(gctx, time.Now())
			return nil
		}
		if err := refresher.Start(gctx); err != nil {
			return fmt.Errorf("start refresher: %w", err)
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return refresher.Stop(stopCtx)
	})

	return g.Wait()
}

// FetchPage fetches the stored page's comments and returns the classified view of the
// 1-based page number.
func (a *Application) FetchPage(ctx context.Context, number int) (usecase.View, error) {
	pageID, token, err := a.storedCredentials(ctx)
	if err != nil {
		return usecase.View{}, err
	}

	select {
	case <-a.pipeline.TriggerFetch(pageID, token):
	case <-ctx.Done():
		return usecase.View{}, ctx.Err()
	}

	if number > 1 {
		a.pipeline.GoToPage(number - 1)
	}
	a.pipeline.Wait()

	view := a.pipeline.View()
	if view.Fetch == usecase.FetchFailed {
		return view, fmt.Errorf("fetch comments: %s", view.FetchError)
	}
	return view, nil
}

// Reply posts message under commentID with the stored page token.
func (a *Application) Reply(ctx context.Context, commentID, message string) error {
	_, token, err := a.storedCredentials(ctx)
	if err != nil {
		return err
	}

	select {
	case err := <-a.pipeline.SendReply(commentID, message, token):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListPages returns the pages manageable with a user access token.
func (a *Application) ListPages(ctx context.Context, userToken string) ([]domain.ManagedPage, error) {
	return a.pages.ListPages(ctx, userToken)
}

// SelectPage stores the page the inbox operates on.
func (a *Application) SelectPage(ctx context.Context, pageID, token string) error {
	return a.credentials.SavePageData(ctx, pageID, token)
}

// Logout forgets the stored page credentials.
func (a *Application) Logout(ctx context.Context) error {
	return a.credentials.ClearToken(ctx)
}

func (a *Application) storedCredentials(ctx context.Context) (string, string, error) {
	pageID, err := a.credentials.PageID(ctx)
	if err != nil {
		return "", "", err
	}
	token, err := a.credentials.PageToken(ctx)
	if err != nil {
		return "", "", err
	}
	if pageID == "" || token == "" {
		return "", "", ErrNoPageSelected
	}
	return pageID, token, nil
}

// Close stops the pipeline and closes the credential store.
func (a *Application) Close() error {
	a.pipeline.Close()
	return a.credentials.Close()
}
