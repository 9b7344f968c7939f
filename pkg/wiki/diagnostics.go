package wiki

// publishDiagnostics pushes broken-link diagnostics for a document
// onto the client stream.
func (h *Handlers) publishDiagnostics(uri, content string) {
	if h.client == nil {
		return
	}

	params := PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: h.computeDiagnostics(content),
	}
	if err := h.client.Notify("textDocument/publishDiagnostics", params); err != nil {
		h.logger.Printf("failed to publish diagnostics for %s: %v", uri, err)
	}
}

// computeDiagnostics flags wikilinks whose target is not indexed.
func (h *Handlers) computeDiagnostics(content string) []Diagnostic {
	_, body := parseFrontmatter(content)
	links := extractWikilinks(body, countLines(content)-countLines(body))

	diags := make([]Diagnostic, 0, len(links))
	for _, link := range links {
		if h.index.GetBySlug(link.Target) != nil {
			continue
		}
		diags = append(diags, Diagnostic{
			Range: Range{
				Start: Position{Line: link.Line, Character: link.StartChar},
				End:   Position{Line: link.Line, Character: link.EndChar},
			},
			Severity: DiagnosticSeverityWarning,
			Source:   "wikilink-lsp",
			Message:  "broken wikilink: page `" + link.Target + "` not found",
		})
	}
	return diags
}
