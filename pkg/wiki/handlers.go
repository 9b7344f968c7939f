package wiki

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/WaylonWalker/lspkit-go/pkg/server"
)

// Version is stamped into the initialize response.
const Version = "0.1.0"

// Document represents an open document in the editor.
type Document struct {
	URI     string
	Content string
	Version int
}

// Handlers is the wikilink language server: document tracking, the
// workspace index, and the feature handlers registered on a router.
type Handlers struct {
	logger *log.Logger
	client *server.Client
	index  *Index

	cfg      *Config
	rootPath string

	docMu     sync.RWMutex
	documents map[string]*Document

	watcher *watcher
}

// NewHandlers creates the server state. client carries push
// notifications (diagnostics, log messages) and may be nil in tests.
func NewHandlers(logger *log.Logger, client *server.Client) *Handlers {
	if logger == nil {
		logger = log.New(os.Stderr, "[wikilink-lsp] ", log.LstdFlags)
	}
	return &Handlers{
		logger:    logger,
		client:    client,
		index:     NewIndex(logger),
		cfg:       DefaultConfig(),
		documents: make(map[string]*Document),
	}
}

// Register wires every handler onto the router.
func (h *Handlers) Register(r *server.Router) error {
	server.Initialize(r, h.initialize)
	server.Shutdown(r, h.shutdown)

	if err := server.NotificationNoParams(r, "initialized", h.initialized); err != nil {
		return err
	}
	if err := server.Notification(r, "textDocument/didOpen", h.didOpen); err != nil {
		return err
	}
	if err := server.Notification(r, "textDocument/didChange", h.didChange); err != nil {
		return err
	}
	if err := server.Notification(r, "textDocument/didClose", h.didClose); err != nil {
		return err
	}
	if err := server.Request(r, "textDocument/completion", h.completion); err != nil {
		return err
	}
	if err := server.Request(r, "textDocument/hover", h.hover); err != nil {
		return err
	}
	if err := server.Request(r, "textDocument/definition", h.definition); err != nil {
		return err
	}
	return nil
}

// initialize stores the workspace root and advertises capabilities.
// Indexing waits for the initialized notification.
func (h *Handlers) initialize(ctx context.Context, params *InitializeParams) (*InitializeResult, error) {
	switch {
	case params.RootURI != nil:
		h.rootPath = uriToPath(*params.RootURI)
	case params.RootPath != nil:
		h.rootPath = *params.RootPath
	}
	h.logger.Printf("initializing with root: %s", h.rootPath)

	return &InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: &TextDocumentSyncOptions{
				OpenClose: true,
				Change:    TextDocumentSyncKindFull,
			},
			CompletionProvider: &CompletionOptions{
				TriggerCharacters: []string{"["},
			},
			HoverProvider:      true,
			DefinitionProvider: true,
		},
		ServerInfo: &ServerInfo{
			Name:    "wikilink-lsp",
			Version: Version,
		},
	}, nil
}

// initialized builds the index and starts watching the workspace.
func (h *Handlers) initialized(ctx context.Context) {
	if h.rootPath == "" {
		return
	}

	cfg, err := LoadConfig(h.rootPath)
	if err != nil {
		h.logger.Printf("failed to load config: %v", err)
		cfg = DefaultConfig()
	}
	h.cfg = cfg

	if err := h.index.Build(h.rootPath, h.cfg); err != nil {
		h.logger.Printf("failed to build index: %v", err)
		return
	}
	h.logger.Printf("indexed %d pages", len(h.index.AllPages()))

	w, err := startWatcher(h)
	if err != nil {
		h.logger.Printf("failed to watch workspace: %v", err)
		return
	}
	h.watcher = w

	if h.client != nil {
		h.client.LogMessage(server.MessageInfo, "wikilink index ready") //nolint:errcheck
	}
}

func (h *Handlers) shutdown(ctx context.Context) error {
	if h.watcher != nil {
		h.watcher.close()
		h.watcher = nil
	}
	h.logger.Printf("shutting down")
	return nil
}

func (h *Handlers) didOpen(ctx context.Context, params *DidOpenTextDocumentParams) {
	td := params.TextDocument
	h.docMu.Lock()
	h.documents[td.URI] = &Document{URI: td.URI, Content: td.Text, Version: td.Version}
	h.docMu.Unlock()

	h.index.Update(td.URI, td.Text)
	h.publishDiagnostics(td.URI, td.Text)
}

func (h *Handlers) didChange(ctx context.Context, params *DidChangeTextDocumentParams) {
	if len(params.ContentChanges) == 0 {
		return
	}
	// Full sync: the last change event carries the whole document.
	content := params.ContentChanges[len(params.ContentChanges)-1].Text
	uri := params.TextDocument.URI

	h.docMu.Lock()
	h.documents[uri] = &Document{URI: uri, Content: content, Version: params.TextDocument.Version}
	h.docMu.Unlock()

	h.index.Update(uri, content)
	h.publishDiagnostics(uri, content)
}

func (h *Handlers) didClose(ctx context.Context, params *DidCloseTextDocumentParams) {
	h.docMu.Lock()
	delete(h.documents, params.TextDocument.URI)
	h.docMu.Unlock()
}

// document returns the tracked buffer for uri.
func (h *Handlers) document(uri string) (*Document, bool) {
	h.docMu.RLock()
	doc, ok := h.documents[uri]
	h.docMu.RUnlock()
	return doc, ok
}

// lineAt returns the content line under a position, or false when the
// position is outside the document.
func (h *Handlers) lineAt(uri string, pos Position) (string, bool) {
	doc, ok := h.document(uri)
	if !ok {
		return "", false
	}
	lines := splitLines(doc.Content)
	if pos.Line >= len(lines) {
		return "", false
	}
	return lines[pos.Line], true
}
