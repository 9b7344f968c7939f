package wiki

import "context"

// definition handles textDocument/definition: jump to the page a
// wikilink targets.
func (h *Handlers) definition(ctx context.Context, params *DefinitionParams) (*Location, error) {
	line, ok := h.lineAt(params.TextDocument.URI, params.Position)
	if !ok {
		return nil, nil
	}

	slug, _ := getWikilinkAtPosition(line, params.Position.Character, params.Position.Line)
	if slug == "" {
		return nil, nil
	}

	page := h.index.GetBySlug(slug)
	if page == nil {
		return nil, nil
	}

	return &Location{
		URI: page.URI,
		Range: Range{
			Start: Position{Line: 0, Character: 0},
			End:   Position{Line: 0, Character: 0},
		},
	}, nil
}
