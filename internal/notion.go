package internal

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dstotijn/go-notion"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

// Notion accepts at most this many blocks per append call.
const notionMaxChildren = 100

var notionFlags = []cli.Flag{
	configFlag(),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "token",
		Usage:   "Notion integration token",
		EnvVars: []string{"TABLEPUSH_NOTION_TOKEN"},
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "page-id",
		Usage:   "id of the page whose content is replaced",
		EnvVars: []string{"TABLEPUSH_NOTION_PAGE_ID"},
	}),
	fileFlag(),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "title",
		Aliases: []string{"t"},
		Usage:   "rename the page",
		EnvVars: []string{"TABLEPUSH_NOTION_TITLE"},
	}),
}

var NotionCommand = cli.Command{
	Name:   "notion",
	Usage:  "replace the content of a Notion page with a table rendered from a CSV file",
	Flags:  notionFlags,
	Before: withConfigFile(notionFlags),
	Action: func(c *cli.Context) error {
		logger := NewLogger(c.App.ErrWriter, c.Bool("debug"))

		cfg, err := newNotionConfig(c)
		if err != nil {
			logger.Error("invalid configuration", "error", err)
			return cli.Exit(err, ExitCode(err))
		}

		rows, err := readRowsFile(cfg.File)
		if err != nil {
			logger.Error("reading source failed", "file", cfg.File, "error", err)
			return cli.Exit(err, ExitCode(err))
		}

		n := notion.NewClient(cfg.Token, notion.WithHTTPClient(httpClient(cfg.Timeout)))
		if err := publishNotion(c.Context, n, cfg, rows, logger); err != nil {
			logger.Error("publish failed", "page_id", cfg.PageID, "error", err)
			return cli.Exit(err, ExitCode(err))
		}

		return nil
	},
}

type notionConfig struct {
	Token   string
	PageID  string
	File    string
	Title   string
	Timeout time.Duration
}

func newNotionConfig(c *cli.Context) (notionConfig, error) {
	cfg := notionConfig{
		Token:   c.String("token"),
		PageID:  c.String("page-id"),
		File:    c.Path("file"),
		Title:   strings.TrimSpace(c.String("title")),
		Timeout: c.Duration("timeout"),
	}

	missing := missingFlags(map[string]string{
		"token":   cfg.Token,
		"page-id": cfg.PageID,
		"file":    cfg.File,
	}, "token", "page-id", "file")
	if len(missing) > 0 {
		return notionConfig{}, &ConfigError{Missing: missing}
	}
	return cfg, nil
}

// publishNotion archives every child block of the page and appends a single
// table built from rows.
func publishNotion(ctx context.Context, n *notion.Client, cfg notionConfig, rows [][]string, logger *slog.Logger) error {
	page, err := n.FindPageByID(ctx, cfg.PageID)
	if err != nil {
		return &RemoteError{Op: "find notion page", Err: err}
	}

	if props, ok := page.Properties.(notion.PageProperties); ok {
		logger.Info("replacing page content", "id", page.ID, "title", renderRichTextAsPlain(props.Title.Title))
	}

	if cfg.Title != "" {
		_, err := n.UpdatePage(ctx, page.ID, notion.UpdatePageParams{
			DatabasePageProperties: notion.DatabasePageProperties{
				"title": {Title: []notion.RichText{plainRichText(cfg.Title)}},
			},
		})
		if err != nil {
			return &RemoteError{Op: "rename notion page", Err: err}
		}
		logger.Debug("renamed page", "id", page.ID, "title", cfg.Title)
	}

	if err := clearBlockChildren(ctx, n, page.ID, logger); err != nil {
		return err
	}

	if len(rows) == 0 {
		logger.Warn("source has no rows, page left empty", "id", page.ID)
		return nil
	}

	tableRows := tableRowBlocks(rows)
	first := tableRows
	if len(first) > notionMaxChildren {
		first = first[:notionMaxChildren]
	}

	appended, err := n.AppendBlockChildren(ctx, page.ID, []notion.Block{
		&notion.TableBlock{
			TableWidth:      tableWidth(rows),
			HasColumnHeader: true,
			Children:        first,
		},
	})
	if err != nil {
		return &RemoteError{Op: "append notion table", Err: err}
	}
	if len(appended.Results) == 0 {
		return &MalformedResponseError{Op: "append notion table", Reason: "no block returned"}
	}
	tableID := appended.Results[0].ID()

	for rest := tableRows[len(first):]; len(rest) > 0; {
		chunk := rest
		if len(chunk) > notionMaxChildren {
			chunk = chunk[:notionMaxChildren]
		}
		if _, err := n.AppendBlockChildren(ctx, tableID, chunk); err != nil {
			return &RemoteError{Op: "append notion table rows", Err: err}
		}
		rest = rest[len(chunk):]
	}

	logger.Info("page updated", "id", page.ID, "table_id", tableID, "rows", len(tableRows))
	return nil
}

// clearBlockChildren archives all children of blockID. Children are listed in
// full before the first delete so pagination cursors stay valid.
func clearBlockChildren(ctx context.Context, n *notion.Client, blockID string, logger *slog.Logger) error {
	var ids []string

	query := &notion.PaginationQuery{}
	for {
		children, err := n.FindBlockChildrenByID(ctx, blockID, query)
		if err != nil {
			return &RemoteError{Op: "list notion blocks", Err: err}
		}

		for _, child := range children.Results {
			ids = append(ids, child.ID())
		}

		if children.HasMore && children.NextCursor != nil {
			query.StartCursor = *children.NextCursor
			continue
		}

		break
	}

	for _, id := range ids {
		if _, err := n.DeleteBlock(ctx, id); err != nil {
			return &RemoteError{Op: "delete notion block", Err: err}
		}
	}

	logger.Debug("cleared page", "id", blockID, "blocks", len(ids))
	return nil
}

// tableRowBlocks pads ragged rows with empty cells; Notion rejects rows
// narrower than the table.
func tableRowBlocks(rows [][]string) []notion.Block {
	width := tableWidth(rows)
	blocks := make([]notion.Block, 0, len(rows))

	for _, row := range rows {
		cells := make([][]notion.RichText, width)
		for i := range cells {
			if i < len(row) && row[i] != "" {
				cells[i] = []notion.RichText{plainRichText(row[i])}
			} else {
				cells[i] = []notion.RichText{}
			}
		}
		blocks = append(blocks, &notion.TableRowBlock{Cells: cells})
	}

	return blocks
}

func tableWidth(rows [][]string) int {
	width := 1
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}

func plainRichText(s string) notion.RichText {
	return notion.RichText{
		Type: notion.RichTextTypeText,
		Text: &notion.Text{Content: s},
	}
}

func renderRichTextAsPlain(richText []notion.RichText) string {
	plainText := strings.Builder{}

	for _, part := range richText {
		plainText.WriteString(part.PlainText)
	}

	return plainText.String()
}
