package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sagarc03/cellar"
	"github.com/sagarc03/cellar/config"
	"github.com/sagarc03/cellar/storage"
)

// app is an opened store plus one model per configured namespace.
type app struct {
	store  *cellar.Store
	models map[string]*cellar.Model
	close  func()
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	registry := cellar.NewRegistry()

	store, closeStore, err := storage.Open(ctx, cfg.StorageOptions(registry))
	if err != nil {
		return nil, err
	}

	models := make(map[string]*cellar.Model, len(cfg.Models))
	for ns, schema := range cfg.Models {
		m, modelErr := cellar.NewModel(store, ns, schema)
		if modelErr != nil {
			closeStore()
			return nil, fmt.Errorf("model %s: %w", ns, modelErr)
		}
		models[ns] = m
	}

	return &app{store: store, models: models, close: closeStore}, nil
}

// appFromCommand opens the app described by the config stored on cmd.
func appFromCommand(cmd *cobra.Command) (*app, error) {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return nil, err
	}
	return openApp(cmd.Context(), cfg)
}

// model returns the configured model for ns. Namespaces without a model get
// one carrying only the file fields.
func (a *app) model(ns string) (*cellar.Model, error) {
	if m, ok := a.models[ns]; ok {
		return m, nil
	}
	if !cellar.IsValidNamespace(ns) {
		return nil, fmt.Errorf("%w: invalid namespace %q", cellar.ErrInvalidInput, ns)
	}

	m, err := cellar.NewModel(a.store, ns, nil)
	if err != nil {
		return nil, err
	}
	a.models[ns] = m
	return m, nil
}

func (a *app) namespaces() []string {
	names := make([]string, 0, len(a.models))
	for ns := range a.models {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}

func (a *app) get(ctx context.Context, ns, id string) (*cellar.Record, error) {
	m, err := a.model(ns)
	if err != nil {
		return nil, err
	}

	rec, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%s/%s: %w", ns, id, cellar.ErrNotFound)
	}
	return rec, nil
}

// isNotFound reports whether err means the record does not exist.
func isNotFound(err error) bool {
	return errors.Is(err, cellar.ErrNotFound)
}
