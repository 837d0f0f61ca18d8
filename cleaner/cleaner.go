package cleaner

import (
	"log/slog"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// Cleaner renders result-page HTML into the Markdown transcript stored with
// each audit entry. The converter is created once and is goroutine-safe.
type Cleaner struct {
	md       *converter.Converter
	selector string
}

// New creates a Cleaner. selector, if non-empty, narrows the transcript to
// the matching elements (e.g. the result container).
func New(selector string) *Cleaner {
	return &Cleaner{
		md: converter.NewConverter(
			converter.WithPlugins(
				// base drops script, style, iframe, input and comments.
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				// The score table must survive as a table.
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
		selector: selector,
	}
}

// Transcript converts rawHTML to Markdown, resolving relative links against
// sourceURL. It returns "" when conversion fails.
func (c *Cleaner) Transcript(rawHTML, sourceURL string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}

	if c.selector != "" {
		scoped, err := Scope(rawHTML, c.selector)
		if err != nil {
			slog.Warn("transcript: invalid result selector, using full page",
				"selector", c.selector, "error", err,
			)
		} else {
			rawHTML = scoped
		}
	}

	md, err := c.md.ConvertString(rawHTML, converter.WithDomain(sourceURL))
	if err != nil {
		slog.Warn("transcript: markdown conversion failed", "error", err)
		return ""
	}
	return strings.TrimSpace(md)
}
