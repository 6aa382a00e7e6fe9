package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/odindexer/internal/backend"
	"github.com/nao1215/odindexer/internal/config"
)

// addCrawlFlags registers the flags shared by index and resume.
func addCrawlFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	// Crawl behavior flags
	flags.IntP("threads", "t", 0,
		fmt.Sprintf("Concurrent requests per root, 1-%d (default %d, %d for FTP)",
			config.MaxThreads, config.DefaultThreads, config.DefaultFTPThreads))
	flags.Duration("timeout", config.DefaultTimeout,
		"Timeout for each listing request")
	flags.DurationP("wait", "w", 0,
		"Fixed delay between requests (requires a single thread)")
	flags.IntP("retries", "r", config.DefaultMaxRetries,
		"Attempts per request before a folder is marked as failed")
	flags.Duration("max-elapsed", config.DefaultMaxElapsed,
		"Give up retrying a request after this long")
	flags.Int("rate-requests", 0,
		"Override the backend quota: requests allowed per --rate-window")
	flags.Duration("rate-window", 0,
		"Window of the --rate-requests quota")
	flags.Float64("rate-fraction", config.DefaultRateFraction,
		"Use only this fraction (0-1] of the backend quota")
	flags.StringSlice("ignore", nil,
		"Folder path patterns to skip (glob syntax, repeatable)")
	flags.StringSlice("follow", nil,
		"Only crawl folders matching these patterns (glob syntax, repeatable)")

	// Backend flags
	flags.StringP("backend", "B", "",
		"Force a backend: "+strings.Join(backend.Names, ", "))
	flags.String("api-key", "",
		"Google Drive API key (default $"+config.APIKeyEnv+")")
	flags.String("user-agent", config.DefaultUserAgent,
		"User-Agent header for HTTP requests")
	flags.Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum bytes read from one listing response")

	// Tor and proxy flags
	flags.Bool("tor", false,
		"Start an embedded Tor daemon and route every request through it")
	flags.StringP("proxy", "x", "",
		"Route requests through a SOCKS5 proxy (e.g., "+config.DefaultTorProxyAddress+")")
	flags.Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Batch flags
	flags.IntP("batch", "b", config.DefaultBatchSize,
		"Number of roots crawled at the same time")

	// Configuration file
	flags.StringP("config", "c", "",
		"Configuration file path (default: .odindexer in current or home directory)")

	// Output flags
	flags.BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	flags.BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	flags.StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	flags.StringP("url-list", "u", "",
		"Write the URL of every file to a text file in this directory")
	flags.String("snapshot-dir", config.XDGSnapshotDir(),
		"Directory for crawl snapshots")
	flags.Bool("no-snapshot", false,
		"Do not save a snapshot when the crawl ends")
	flags.String("db-dir", config.XDGDataDir(),
		"Directory of the session history database")
	flags.Bool("no-db", false,
		"Do not record the session in the history database")
	flags.BoolP("quiet", "q", false,
		"Do not print crawl progress")
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, targets []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Threads, err = flags.GetInt("threads"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.Wait, err = flags.GetDuration("wait"); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = flags.GetInt("retries"); err != nil {
		return nil, err
	}
	if cfg.MaxElapsed, err = flags.GetDuration("max-elapsed"); err != nil {
		return nil, err
	}
	if cfg.RateRequests, err = flags.GetInt("rate-requests"); err != nil {
		return nil, err
	}
	if cfg.RateWindow, err = flags.GetDuration("rate-window"); err != nil {
		return nil, err
	}
	if cfg.RateFraction, err = flags.GetFloat64("rate-fraction"); err != nil {
		return nil, err
	}
	if cfg.IgnorePatterns, err = flags.GetStringSlice("ignore"); err != nil {
		return nil, err
	}
	if cfg.FollowPatterns, err = flags.GetStringSlice("follow"); err != nil {
		return nil, err
	}

	if cfg.Backend, err = flags.GetString("backend"); err != nil {
		return nil, err
	}
	if cfg.APIKey, err = flags.GetString("api-key"); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(config.APIKeyEnv)
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}

	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.SiteConfigs, err = loadSiteConfigs(cfg.ConfigFilePath); err != nil {
		return nil, err
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.URLListDir, err = flags.GetString("url-list"); err != nil {
		return nil, err
	}
	if cfg.SnapshotDir, err = flags.GetString("snapshot-dir"); err != nil {
		return nil, err
	}
	if cfg.NoSnapshot, err = flags.GetBool("no-snapshot"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	if cfg.Quiet, err = flags.GetBool("quiet"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	cfg.Targets = targets
	return cfg, nil
}

// loadSiteConfigs loads the site configuration file.
// If the user explicitly specified a path, a missing file is an error.
// Otherwise an empty configuration is used when no file is found.
func loadSiteConfigs(explicitPath string) (*config.File, error) {
	path := config.FindConfigFile(explicitPath)
	if path == "" {
		if explicitPath != "" {
			return nil, fmt.Errorf("configuration file not found: %s", explicitPath)
		}
		return &config.File{Sites: make(map[string]config.SiteConfig)}, nil
	}

	cf, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return cf, nil
}
