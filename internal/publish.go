package internal

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

var confluenceFlags = []cli.Flag{
	configFlag(),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "url",
		Usage:   "base URL of the wiki, e.g. https://example.atlassian.net/wiki",
		EnvVars: []string{"TABLEPUSH_URL"},
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "title",
		Aliases: []string{"t"},
		Usage:   "title of the page to overwrite",
		EnvVars: []string{"TABLEPUSH_TITLE"},
	}),
	fileFlag(),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "email",
		Usage:   "account email",
		EnvVars: []string{"TABLEPUSH_EMAIL"},
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "token",
		Usage:   "API token",
		EnvVars: []string{"TABLEPUSH_TOKEN"},
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "space-id",
		Usage:   "only match pages in this space",
		EnvVars: []string{"TABLEPUSH_SPACE_ID"},
	}),
	altsrc.NewBoolFlag(&cli.BoolFlag{
		Name:    "strict",
		Usage:   "fail when several pages share the title",
		EnvVars: []string{"TABLEPUSH_STRICT"},
	}),
}

var ConfluenceCommand = cli.Command{
	Name:   "confluence",
	Usage:  "overwrite a wiki page with a table rendered from a CSV file",
	Flags:  confluenceFlags,
	Before: withConfigFile(confluenceFlags),
	Action: func(c *cli.Context) error {
		logger := NewLogger(c.App.ErrWriter, c.Bool("debug"))

		cfg, err := newRunConfig(c)
		if err != nil {
			logger.Error("invalid configuration", "error", err)
			return cli.Exit(err, ExitCode(err))
		}

		client := NewConfluenceClient(cfg.BaseURL, cfg.Credentials, httpClient(cfg.Timeout), logger)
		if err := publishConfluence(c.Context, cfg, client, logger); err != nil {
			logger.Error("publish failed", "title", cfg.Title, "file", cfg.File, "error", err)
			return cli.Exit(err, ExitCode(err))
		}

		return nil
	},
}

// publishConfluence renders the file, resolves the page and overwrites it.
// The first failing step ends the run.
func publishConfluence(ctx context.Context, cfg RunConfig, client *ConfluenceClient, logger *slog.Logger) error {
	html, err := RenderFile(cfg.File, cfg.Escape)
	if err != nil {
		return err
	}
	logger.Debug("rendered table", "file", cfg.File, "bytes", len(html), "escape", cfg.Escape)

	ref, err := client.FindPage(ctx, LookupQuery{
		Title:   cfg.Title,
		SpaceID: cfg.SpaceID,
		Strict:  cfg.Strict,
	})
	if err != nil {
		return err
	}

	status, err := client.UpdatePage(ctx, PageUpdate{
		Ref:   ref,
		Title: cfg.Title,
		HTML:  html,
	})
	if err != nil {
		return err
	}

	logger.Info("page updated", "title", cfg.Title, "id", ref.ID, "version", ref.Version+1, "status", status)
	return nil
}
