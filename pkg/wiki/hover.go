package wiki

import (
	"context"
	"strings"
)

// hover handles textDocument/hover: page details for the wikilink
// under the cursor.
func (h *Handlers) hover(ctx context.Context, params *HoverParams) (*Hover, error) {
	line, ok := h.lineAt(params.TextDocument.URI, params.Position)
	if !ok {
		return nil, nil
	}

	slug, linkRange := getWikilinkAtPosition(line, params.Position.Character, params.Position.Line)
	if slug == "" {
		return nil, nil
	}

	page := h.index.GetBySlug(slug)
	if page == nil {
		return &Hover{
			Contents: MarkupContent{
				Kind:  "markdown",
				Value: "**Broken link**\n\nTarget page `" + slug + "` not found.",
			},
			Range: linkRange,
		}, nil
	}

	var sb strings.Builder
	sb.WriteString("## ")
	sb.WriteString(page.Title)
	sb.WriteString("\n\n")

	if page.Description != "" {
		sb.WriteString(page.Description)
		sb.WriteString("\n\n")
	}

	sb.WriteString("---\n")
	sb.WriteString("*Slug:* `")
	sb.WriteString(page.Slug)
	sb.WriteString("`\n\n")
	sb.WriteString("*Path:* `")
	sb.WriteString(page.Path)
	sb.WriteString("`")

	return &Hover{
		Contents: MarkupContent{
			Kind:  "markdown",
			Value: sb.String(),
		},
		Range: linkRange,
	}, nil
}

// getWikilinkAtPosition returns the slug of the wikilink covering the
// column, with its range, or "" when the cursor is not on one.
func getWikilinkAtPosition(line string, col, lineNum int) (string, *Range) {
	for _, match := range wikilinkRegex.FindAllStringSubmatchIndex(line, -1) {
		if col < match[0] || col >= match[1] {
			continue
		}
		slug := strings.TrimSpace(line[match[2]:match[3]])
		return slug, &Range{
			Start: Position{Line: lineNum, Character: match[0]},
			End:   Position{Line: lineNum, Character: match[1]},
		}
	}
	return "", nil
}
