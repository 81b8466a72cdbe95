package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/hupe1980/tokenscope"
	"github.com/hupe1980/tokenscope/blobstore"
	s3store "github.com/hupe1980/tokenscope/blobstore/s3"
	"github.com/hupe1980/tokenscope/registry"
)

// config holds environment defaults; flags override.
type config struct {
	BaseURL  string `envconfig:"BASE_URL"`
	Registry string `envconfig:"REGISTRY"`
	Dataset  string `envconfig:"DATASET"`
	Variant  string `envconfig:"VARIANT" default:"input"`
}

// app wires flags, environment and the Explorer for all subcommands.
type app struct {
	cfg      config
	explorer *tokenscope.Explorer
	selector registry.Selector
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := envconfig.Process("tokenscope", &a.cfg); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	flags := cmd.Flags()
	if v, _ := flags.GetString("base-url"); v != "" {
		a.cfg.BaseURL = v
	}
	if v, _ := flags.GetString("registry"); v != "" {
		a.cfg.Registry = v
	}
	if v, _ := flags.GetString("dataset"); v != "" {
		a.cfg.Dataset = v
	}
	if v, _ := flags.GetString("variant"); v != "" {
		a.cfg.Variant = v
	}

	if a.cfg.BaseURL == "" {
		return fmt.Errorf("no artifact location: set --base-url or TOKENSCOPE_BASE_URL")
	}
	if a.cfg.Registry == "" {
		return fmt.Errorf("no registry: set --registry or TOKENSCOPE_REGISTRY")
	}
	if a.cfg.Dataset == "" {
		return fmt.Errorf("no dataset: set --dataset or TOKENSCOPE_DATASET")
	}

	reg, err := registry.LoadFile(a.cfg.Registry)
	if err != nil {
		return err
	}

	store, err := newStore(cmd.Context(), a.cfg.BaseURL)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if verbose, _ := flags.GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	a.explorer, err = tokenscope.New(store, reg,
		tokenscope.WithLogger(tokenscope.NewTextLogger(level)),
	)
	if err != nil {
		return err
	}

	a.selector = registry.Selector{
		Dataset: a.cfg.Dataset,
		Variant: registry.Variant(a.cfg.Variant),
	}
	return nil
}

func (a *app) selectDataset(ctx context.Context) error {
	return a.explorer.Select(ctx, a.selector)
}

// newStore picks a backend from the location's scheme.
func newStore(ctx context.Context, baseURL string) (blobstore.Store, error) {
	switch {
	case strings.HasPrefix(baseURL, "http://"), strings.HasPrefix(baseURL, "https://"):
		return blobstore.NewHTTPStore(baseURL, nil)
	case strings.HasPrefix(baseURL, "s3://"):
		rest := strings.TrimPrefix(baseURL, "s3://")
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, fmt.Errorf("invalid s3 location: %s", baseURL)
		}
		return s3store.NewFromConfig(ctx, bucket, prefix)
	default:
		return blobstore.NewLocalStore(baseURL), nil
	}
}
