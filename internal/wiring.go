package internal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/auth"
	"google.golang.org/api/option"

	"github.com/starford/thinkblock/internal/aibridge"
	"github.com/starford/thinkblock/internal/gcpauth"
	"github.com/starford/thinkblock/internal/planservice"
	"github.com/starford/thinkblock/internal/storage"
)

// components holds everything both the HTTP server and the MCP server need.
type components struct {
	factory *storage.Factory
	service *planservice.Service
}

// credentialSource resolves Google Cloud credentials once. Memory and SQLite
// deployments without AI never trigger the lookup.
type credentialSource struct {
	cfg *Config

	once  sync.Once
	creds *auth.Credentials
	err   error
}

func (c *credentialSource) get() (*auth.Credentials, error) {
	c.once.Do(func() {
		file := gcpauth.FindFile(c.cfg.GCP.Root, c.cfg.GCP.CredentialsFile)
		c.creds, c.err = gcpauth.Detect(file)
		if c.err == nil {
			slog.Info("GCP credentials loaded", slog.String("file", file))
		}
	})
	return c.creds, c.err
}

func buildComponents(ctx context.Context, cfg *Config, events planservice.Publisher, logger *slog.Logger) (*components, error) {
	creds := &credentialSource{cfg: cfg}

	storeOpts := storage.Options{
		Backend:           cfg.Storage.Backend,
		SQLitePath:        cfg.Storage.SQLitePath,
		FirestoreDatabase: cfg.GCP.FirestoreDatabase,
		Logger:            logger,
	}
	if cfg.Storage.Backend == BackendFirestore {
		c, err := creds.get()
		if err != nil {
			return nil, fmt.Errorf("firestore credentials: %w", err)
		}
		projectID, err := gcpauth.ProjectID(ctx, c, cfg.GCP.FirebaseProjectID)
		if err != nil {
			return nil, fmt.Errorf("firestore project: %w", err)
		}
		storeOpts.FirestoreProject = projectID
		storeOpts.ClientOptions = []option.ClientOption{option.WithAuthCredentials(c)}
	}

	factory := storage.NewFactory(storeOpts)
	store, err := factory.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	gen := aibridge.NewLazyGenerator(func(ctx context.Context) (aibridge.Generator, error) {
		c, err := creds.get()
		if err != nil {
			return nil, err
		}
		projectID, err := gcpauth.ProjectID(ctx, c, cfg.AI.Project)
		if err != nil {
			return nil, err
		}
		return aibridge.NewVertexGenerator(ctx, aibridge.VertexConfig{
			Project:     projectID,
			Location:    cfg.AI.Location,
			Model:       cfg.AI.Model,
			Credentials: c,
		})
	}, logger)

	svc := planservice.NewService(store, aibridge.New(gen, logger), events, planservice.Options{
		StorageTimeout: cfg.Storage.Timeout,
		AITimeout:      cfg.AI.Timeout,
		Logger:         logger,
	})

	return &components{factory: factory, service: svc}, nil
}

func (c *components) close(logger *slog.Logger) {
	if err := c.factory.Close(); err != nil {
		logger.Error("storage close error", slog.String("error", err.Error()))
	}
}
