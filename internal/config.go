package internal

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

// GlobalFlags are accepted before any subcommand.
var GlobalFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:    "debug",
		Usage:   "log at debug level",
		EnvVars: []string{"TABLEPUSH_DEBUG"},
	},
	&cli.DurationFlag{
		Name:    "timeout",
		Usage:   "per-request timeout, 0 waits forever",
		EnvVars: []string{"TABLEPUSH_TIMEOUT"},
	},
	&cli.StringFlag{
		Name:    "escape",
		Usage:   "how cell values are written: none, html or sanitize",
		Value:   string(EscapeHTML),
		EnvVars: []string{"TABLEPUSH_ESCAPE"},
	},
}

func configFlag() cli.Flag {
	return &cli.PathFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML file with flag values",
		EnvVars: []string{"TABLEPUSH_CONFIG"},
	}
}

func fileFlag() cli.Flag {
	return altsrc.NewPathFlag(&cli.PathFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "CSV file to publish",
		EnvVars: []string{"TABLEPUSH_FILE"},
	})
}

// withConfigFile loads values for flags from the file named by --config.
// Flags set on the command line or through the environment win.
func withConfigFile(flags []cli.Flag) cli.BeforeFunc {
	return altsrc.InitInputSourceWithContext(flags, altsrc.NewYamlSourceFromFlagFunc("config"))
}

// RunConfig is everything a confluence run needs. It is not changed after
// newRunConfig returns.
type RunConfig struct {
	BaseURL     string
	Title       string
	File        string
	SpaceID     string
	Strict      bool
	Debug       bool
	Timeout     time.Duration
	Escape      EscapePolicy
	Credentials Credentials
}

func newRunConfig(c *cli.Context) (RunConfig, error) {
	cfg := RunConfig{
		BaseURL: c.String("url"),
		Title:   c.String("title"),
		File:    c.Path("file"),
		SpaceID: c.String("space-id"),
		Strict:  c.Bool("strict"),
		Debug:   c.Bool("debug"),
		Timeout: c.Duration("timeout"),
		Credentials: Credentials{
			Email: c.String("email"),
			Token: c.String("token"),
		},
	}

	missing := missingFlags(map[string]string{
		"url":   cfg.BaseURL,
		"title": cfg.Title,
		"file":  cfg.File,
		"email": cfg.Credentials.Email,
		"token": cfg.Credentials.Token,
	}, "url", "title", "file", "email", "token")
	if len(missing) > 0 {
		return RunConfig{}, &ConfigError{Missing: missing}
	}

	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return RunConfig{}, &ConfigError{Err: fmt.Errorf("invalid --url %q", cfg.BaseURL)}
	}

	escape, err := ParseEscapePolicy(c.String("escape"))
	if err != nil {
		return RunConfig{}, &ConfigError{Err: err}
	}
	cfg.Escape = escape

	return cfg, nil
}

// missingFlags lists, in order, the names whose values are empty.
func missingFlags(values map[string]string, order ...string) []string {
	var missing []string
	for _, name := range order {
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func httpClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
