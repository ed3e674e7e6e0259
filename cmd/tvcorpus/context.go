package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tvcorpus/internal/alignment"
	"tvcorpus/internal/artifacts"
	"tvcorpus/internal/config"
	"tvcorpus/internal/grouping"
	"tvcorpus/internal/logging"
	"tvcorpus/internal/propagation"
	"tvcorpus/internal/services"
	"tvcorpus/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// app bundles the services one command invocation works with.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	alignment *alignment.Service
	grouping  *grouping.Consolidator
	propagate *propagation.Propagator
}

// withApp opens the store and services for one command and closes them
// afterwards. The command context carries a fresh request id.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	st, err := store.Open(cfg)
	if err != nil {
		return services.Wrap(services.ErrIO, "cli", "open store", "", err)
	}
	defer st.Close()
	docs, err := artifacts.New(cfg.Paths.ArtifactsDir, logger)
	if err != nil {
		return services.Wrap(services.ErrIO, "cli", "open artifacts", "", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = services.WithRequestID(ctx, uuid.NewString())

	return fn(ctx, &app{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		alignment: alignment.New(cfg, st, docs, logger),
		grouping:  grouping.New(st, docs, logger),
		propagate: propagation.New(cfg, st, logger),
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// storeFailure classifies an error returned by a direct store call.
func storeFailure(operation string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return services.Wrap(services.ErrNotFound, "cli", operation, "", err)
	case errors.Is(err, store.ErrConflict):
		return services.Wrap(services.ErrConflict, "cli", operation, "", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrCanceled, "cli", operation, "", err)
	default:
		return services.Wrap(services.ErrIO, "cli", operation, "", err)
	}
}
