// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface of fhirq. It wires configuration,
// the OS keychain, token refresh and the platform client into cobra commands for
// querying FHIR resources, exporting tables and managing files.
package cmd

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fhirq/cli/internal/auth"
	"fhirq/cli/internal/backend"
	"fhirq/cli/internal/cache"
	"fhirq/cli/internal/config"
	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/keychain"
	"fhirq/cli/internal/logging"
	"fhirq/cli/internal/manifest"
	"fhirq/cli/internal/resource"
)

var (
	configPath  string
	flagEnv     string
	flagAccount string
	flagProject string
	flagVerbose bool
	flagQuiet   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fhirq",
	Short: "Query FHIR resources through the search DSL",
	Long: `fhirq queries a FHIR document store through its Elasticsearch-style DSL.

It scopes queries to patients, scrolls through large result sets with an on-disk
result cache, flattens codeable concepts into tables, and writes them to the
terminal, JSON, CSV, Parquet or PostgreSQL.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Errors are presented with their kind-specific hints.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.PresentFatal(err)
		return 1
	}
	return 0
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/fhirq/config.yaml)")
	pf.StringVarP(&flagEnv, "env", "e", "", "platform environment ("+joinEnvs()+")")
	pf.StringVarP(&flagAccount, "account", "a", "", "account id sent as LifeOmic-Account")
	pf.StringVarP(&flagProject, "project", "p", "", "project (dataset) id to query")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging on stderr")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "no progress output")
}

func joinEnvs() string {
	out := ""
	for i, e := range manifest.Environments() {
		if i > 0 {
			out += ", "
		}
		out += e
	}
	return out
}

// app holds the collaborators commands share. It is built once per invocation.
type app struct {
	cfg       config.Config
	cfgPath   string
	log       zerolog.Logger
	endpoints manifest.Endpoints
	keys      *keychain.Manager
	auth      *auth.Service
	client    *backend.Client
}

func loadConfig() (config.Config, string, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return config.Config{}, "", errors.Wrap(errors.Config, "resolve config dir", err)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, path, err
	}
	if flagEnv != "" {
		cfg.Environment = flagEnv
	}
	if flagAccount != "" {
		cfg.Account = flagAccount
	}
	if flagProject != "" {
		cfg.Project = flagProject
	}
	return cfg, path, nil
}

func newApp() (*app, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.LogLevel, flagVerbose, os.Stderr)

	eps, err := manifest.Resolve(cfg.Environment, cfg.APIURL, cfg.FHIRURL)
	if err != nil {
		return nil, err
	}
	keys, err := keychain.NewManager()
	if err != nil {
		return nil, errors.Wrap(errors.Auth, "open keychain", err)
	}

	ua := backend.DefaultUserAgent(Version)
	hc := &http.Client{Timeout: cfg.Timeout}
	svc := auth.NewService(keys, backend.NewOAuth(eps, hc, ua), log)
	client := backend.New(eps, svc, backend.Options{
		Account:    cfg.Account,
		Timeout:    cfg.Timeout,
		UserAgent:  ua,
		HTTPClient: hc,
		Logger:     log,
	})
	return &app{cfg: cfg, cfgPath: path, log: log, endpoints: eps, keys: keys, auth: svc, client: client}, nil
}

func (a *app) project() (string, error) {
	if a.cfg.Project == "" {
		return "", errors.New(errors.Validation, "no project selected; pass --project or run 'fhirq config set project <id>'")
	}
	return a.cfg.Project, nil
}

// openCache opens the configured result cache. The store is nil for backend "none".
func (a *app) openCache() (cache.Store, io.Closer, error) {
	dir, err := a.cfg.CacheDir()
	if err != nil {
		return nil, nil, errors.Wrap(errors.Config, "resolve cache dir", err)
	}
	return cache.Open(a.cfg.Cache.Backend, dir)
}

// accessor returns a resource accessor over the current project. The closer
// releases the cache.
func (a *app) accessor() (*resource.Accessor, io.Closer, error) {
	project, err := a.project()
	if err != nil {
		return nil, nil, err
	}
	store, closer, err := a.openCache()
	if err != nil {
		return nil, nil, err
	}
	return resource.NewAccessor(a.client, project, store, a.log), closer, nil
}
