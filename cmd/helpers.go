package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/talent-ops/intake-cli/internal/config"
	"github.com/talent-ops/intake-cli/internal/cost"
	"github.com/talent-ops/intake-cli/internal/extract"
	"github.com/talent-ops/intake-cli/internal/history"
	"github.com/talent-ops/intake-cli/internal/mirror"
	"github.com/talent-ops/intake-cli/internal/tabular"
	"github.com/talent-ops/intake-cli/internal/workflow"
	anthropicpkg "github.com/talent-ops/intake-cli/pkg/anthropic"
	"github.com/talent-ops/intake-cli/pkg/sheets"
)

// env bundles the wired collaborators for one command invocation.
type env struct {
	Engine  *workflow.Engine
	Store   tabular.Store
	Mirror  mirror.Mirror
	History history.Store
	Fields  *config.FieldDictionary
}

func (e *env) Close() {
	if e.History != nil {
		e.History.Close() //nolint:errcheck
	}
}

func initFields() (*config.FieldDictionary, error) {
	return config.LoadFields(cfg.Fields.File)
}

func initStore(dict *config.FieldDictionary) (tabular.Store, error) {
	return tabular.NewCSV(cfg.Store.Path, dict.InitialKeys,
		tabular.WithCaseInsensitiveMatch(cfg.Store.CaseInsensitive)), nil
}

// initMirror returns nil when the sheets mirror is not configured.
func initMirror() mirror.Mirror {
	if cfg.Sheets.Token == "" || cfg.Sheets.SpreadsheetID == "" {
		return nil
	}
	client := sheets.NewClient(cfg.Sheets.Token, cfg.Sheets.SpreadsheetID,
		sheets.WithBaseURL(cfg.Sheets.BaseURL))
	return mirror.NewSheets(client, cfg.Sheets.SheetName,
		mirror.WithRateLimit(cfg.Sheets.RateLimitPerSec))
}

func initHistory(ctx context.Context) (history.Store, error) {
	var (
		st  history.Store
		err error
	)
	switch cfg.History.Driver {
	case "sqlite":
		dsn := cfg.History.Path
		if dsn == "" {
			dsn = "intake.db"
		}
		st, err = history.NewSQLite(dsn)
	case "postgres":
		st, err = history.NewPostgres(ctx, cfg.History.DatabaseURL, &history.PoolConfig{
			MaxConns: cfg.History.MaxConns,
			MinConns: cfg.History.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported history driver: %s", cfg.History.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate history")
	}
	return st, nil
}

func initExtractor() (extract.Extractor, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (INTAKE_ANTHROPIC_KEY)")
	}
	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	return extract.NewLLM(client,
		extract.WithModel(cfg.Anthropic.Model),
		extract.WithTimeout(time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second),
	), nil
}

func pricingRates() map[string]cost.ModelRate {
	if len(cfg.Pricing.Anthropic) == 0 {
		return nil
	}
	rates := make(map[string]cost.ModelRate, len(cfg.Pricing.Anthropic))
	for id, p := range cfg.Pricing.Anthropic {
		rates[id] = cost.ModelRate{Input: p.Input, Output: p.Output}
	}
	return rates
}

// initEnv wires the full engine: store, extractor, optional mirror and
// history, session TTL and identity field from config.
func initEnv(ctx context.Context) (*env, error) {
	dict, err := initFields()
	if err != nil {
		return nil, err
	}
	if cfg.Fields.IdentityField != "" {
		dict.IdentityField = cfg.Fields.IdentityField
	}

	st, err := initStore(dict)
	if err != nil {
		return nil, err
	}

	ex, err := initExtractor()
	if err != nil {
		return nil, err
	}

	hist, err := initHistory(ctx)
	if err != nil {
		return nil, err
	}

	m := initMirror()

	opts := []workflow.EngineOption{
		workflow.WithHistory(hist),
		workflow.WithIdentityField(dict.IdentityField),
		workflow.WithCost(cost.New(pricingRates()), cfg.Anthropic.Model),
		workflow.WithSessions(workflow.NewManager(
			workflow.WithTTL(time.Duration(cfg.Session.TTLMinutes) * time.Minute))),
	}
	if m != nil {
		opts = append(opts, workflow.WithMirror(m))
	}

	return &env{
		Engine:  workflow.NewEngine(st, ex, opts...),
		Store:   st,
		Mirror:  m,
		History: hist,
		Fields:  dict,
	}, nil
}
