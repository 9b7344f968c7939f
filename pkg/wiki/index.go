// Package wiki is a small language server for markdown workspaces
// with [[wikilink]] cross-references, built on the lspkit engine. It
// provides completion, hover, go-to-definition, and push diagnostics
// for broken links.
package wiki

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// PageInfo contains indexed information about one page.
type PageInfo struct {
	// URI is the file URI (file:///path/to/file.md)
	URI string

	// Path is the file system path
	Path string

	// Slug is the identifier wikilinks target
	Slug string

	// Title is the page title (from frontmatter, else the slug)
	Title string

	// Description is the page description
	Description string

	// Wikilinks contains all wikilinks found in the page
	Wikilinks []WikilinkInfo
}

// WikilinkInfo is one [[target]] occurrence.
type WikilinkInfo struct {
	// Target is the slug being linked to
	Target string

	// Line is the 0-based line number
	Line int

	// StartChar is the 0-based character position of [[
	StartChar int

	// EndChar is the 0-based character position after ]]
	EndChar int
}

// Index maintains the indexed pages of a workspace.
type Index struct {
	logger *log.Logger

	mu        sync.RWMutex
	pages     map[string]*PageInfo
	uriToSlug map[string]string
}

// NewIndex creates an empty page index.
func NewIndex(logger *log.Logger) *Index {
	return &Index{
		logger:    logger,
		pages:     make(map[string]*PageInfo),
		uriToSlug: make(map[string]string),
	}
}

// Build indexes every file selected by the config globs under
// rootPath, replacing any prior contents.
func (idx *Index) Build(rootPath string, cfg *Config) error {
	idx.mu.Lock()
	idx.pages = make(map[string]*PageInfo)
	idx.uriToSlug = make(map[string]string)
	idx.mu.Unlock()

	for _, pattern := range cfg.Globs {
		matches, err := doublestar.FilepathGlob(filepath.Join(rootPath, pattern))
		if err != nil {
			return fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, path := range matches {
			if err := idx.indexFile(path); err != nil {
				idx.logger.Printf("failed to index %s: %v", path, err)
			}
		}
	}

	return nil
}

// indexFile indexes a single file from disk.
func (idx *Index) indexFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	idx.Update(pathToURI(path), string(content))
	return nil
}

// Update (re)indexes one document from its current content. The URI
// need not exist on disk; open editor buffers index the same way.
func (idx *Index) Update(uri, content string) {
	path := uriToPath(uri)
	metadata, body := parseFrontmatter(content)

	slug := getString(metadata, "slug")
	if slug == "" {
		slug = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	title := getString(metadata, "title")
	if title == "" {
		title = slug
	}

	page := &PageInfo{
		URI:         uri,
		Path:        path,
		Slug:        slug,
		Title:       title,
		Description: getString(metadata, "description"),
		Wikilinks:   extractWikilinks(body, countLines(content)-countLines(body)),
	}

	idx.mu.Lock()
	if old, ok := idx.uriToSlug[uri]; ok && old != slug {
		delete(idx.pages, old)
	}
	idx.pages[slug] = page
	idx.uriToSlug[uri] = slug
	idx.mu.Unlock()
}

// Remove drops a document from the index.
func (idx *Index) Remove(uri string) {
	idx.mu.Lock()
	if slug, ok := idx.uriToSlug[uri]; ok {
		delete(idx.pages, slug)
		delete(idx.uriToSlug, uri)
	}
	idx.mu.Unlock()
}

// GetBySlug returns the page for slug, or nil.
func (idx *Index) GetBySlug(slug string) *PageInfo {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.pages[slug]
}

// AllPages returns every indexed page.
func (idx *Index) AllPages() []*PageInfo {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	pages := make([]*PageInfo, 0, len(idx.pages))
	for _, p := range idx.pages {
		pages = append(pages, p)
	}
	return pages
}

// SearchPages returns pages whose slug or title contains the prefix,
// case-insensitively.
func (idx *Index) SearchPages(prefix string) []*PageInfo {
	prefix = strings.ToLower(prefix)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var pages []*PageInfo
	for _, p := range idx.pages {
		if strings.Contains(strings.ToLower(p.Slug), prefix) ||
			strings.Contains(strings.ToLower(p.Title), prefix) {
			pages = append(pages, p)
		}
	}
	return pages
}

// wikilinkRegex matches [[target]] and [[target|display]].
var wikilinkRegex = regexp.MustCompile(`\[\[([^\]|]+)(\|[^\]]*)?\]\]`)

// extractWikilinks scans body for wikilinks. lineOffset accounts for
// the frontmatter lines stripped from content.
func extractWikilinks(body string, lineOffset int) []WikilinkInfo {
	var links []WikilinkInfo
	for i, line := range strings.Split(body, "\n") {
		for _, match := range wikilinkRegex.FindAllStringSubmatchIndex(line, -1) {
			links = append(links, WikilinkInfo{
				Target:    strings.TrimSpace(line[match[2]:match[3]]),
				Line:      i + lineOffset,
				StartChar: match[0],
				EndChar:   match[1],
			})
		}
	}
	return links
}

// parseFrontmatter splits YAML frontmatter from the body. Content
// without a leading "---" line has no frontmatter; malformed YAML is
// treated the same so the page still indexes.
func parseFrontmatter(content string) (map[string]any, string) {
	metadata := make(map[string]any)

	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return metadata, content
	}

	rest := content[strings.Index(content, "\n")+1:]
	end := strings.Index(rest, "\n---")
	if end == -1 {
		return metadata, content
	}
	front := rest[:end+1]
	body := rest[end+1:]
	if i := strings.Index(body, "\n"); i != -1 {
		body = body[i+1:]
	} else {
		body = ""
	}

	if err := yaml.Unmarshal([]byte(front), &metadata); err != nil {
		return make(map[string]any), content
	}
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return metadata, body
}

func getString(metadata map[string]any, key string) string {
	if v, ok := metadata[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func countLines(s string) int {
	return strings.Count(s, "\n") + 1
}

func splitLines(s string) []string {
	return strings.Split(s, "\n")
}

// pathToURI converts a file system path to a file:// URI.
func pathToURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}

// uriToPath converts a file:// URI back to a file system path.
func uriToPath(uri string) string {
	path := strings.TrimPrefix(uri, "file://")
	return filepath.FromSlash(path)
}
