package wiki

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// completion handles textDocument/completion: suggestions inside an
// open [[wikilink.
func (h *Handlers) completion(ctx context.Context, params *CompletionParams) (*CompletionList, error) {
	empty := &CompletionList{Items: []CompletionItem{}}

	line, ok := h.lineAt(params.TextDocument.URI, params.Position)
	if !ok {
		return empty, nil
	}

	col := params.Position.Character
	if col > len(line) {
		col = len(line)
	}

	prefix, startCol, inWikilink := getWikilinkContext(line, col)
	if !inWikilink {
		return empty, nil
	}

	var pages []*PageInfo
	if prefix == "" {
		pages = h.index.AllPages()
	} else {
		pages = h.index.SearchPages(prefix)
	}

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].Title < pages[j].Title
	})

	items := make([]CompletionItem, 0, len(pages))
	for i, page := range pages {
		item := CompletionItem{
			Label:  page.Slug,
			Kind:   CompletionItemKindReference,
			Detail: page.Title,
			Documentation: &MarkupContent{
				Kind:  "markdown",
				Value: formatPageDocumentation(page),
			},
			InsertText: page.Slug,
			FilterText: page.Slug + " " + page.Title,
			SortText:   fmt.Sprintf("%05d", i),
		}
		if prefix != "" {
			item.TextEdit = &TextEdit{
				Range: Range{
					Start: Position{Line: params.Position.Line, Character: startCol},
					End:   Position{Line: params.Position.Line, Character: col},
				},
				NewText: page.Slug,
			}
		}
		items = append(items, item)
	}

	return &CompletionList{Items: items}, nil
}

// wikilinkStartRegex matches an unclosed [[ before the cursor.
var wikilinkStartRegex = regexp.MustCompile(`\[\[([^\]|]*)$`)

// getWikilinkContext checks if the cursor is inside a wikilink and
// returns the typed prefix and its start column.
func getWikilinkContext(line string, col int) (prefix string, startCol int, inWikilink bool) {
	if col > len(line) {
		col = len(line)
	}
	textBeforeCursor := line[:col]

	match := wikilinkStartRegex.FindStringSubmatchIndex(textBeforeCursor)
	if match == nil {
		return "", 0, false
	}

	startCol = match[2]
	prefix = textBeforeCursor[startCol:]

	// Inside the display text part there is nothing to complete.
	if strings.Contains(prefix, "|") {
		return "", 0, false
	}

	return prefix, startCol, true
}

// formatPageDocumentation formats page info for completion docs.
func formatPageDocumentation(page *PageInfo) string {
	var sb strings.Builder

	sb.WriteString("**")
	sb.WriteString(page.Title)
	sb.WriteString("**\n\n")

	if page.Description != "" {
		sb.WriteString(page.Description)
		sb.WriteString("\n\n")
	}

	sb.WriteString("*Path: ")
	sb.WriteString(page.Path)
	sb.WriteString("*")

	return sb.String()
}
