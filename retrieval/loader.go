package retrieval

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Loader converts raw file content into documents. name is the file path
// relative to the corpus root and seeds document IDs and titles.
type Loader interface {
	Load(name string, content []byte) ([]Document, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(name string, content []byte) ([]Document, error)

// Load implements Loader.
func (f LoaderFunc) Load(name string, content []byte) ([]Document, error) { return f(name, content) }

// DefaultLoaders maps lower-case file extensions to loaders.
func DefaultLoaders() map[string]Loader {
	return map[string]Loader{
		".jsonl":    JSONLLoader{},
		".html":     HTMLLoader{},
		".htm":      HTMLLoader{},
		".md":       MarkdownLoader{},
		".markdown": MarkdownLoader{},
		".pdf":      PDFLoader{},
		".txt":      TextLoader{},
	}
}

// LoadPath loads a single file or every supported file below a directory,
// in lexical path order. Unsupported files inside a directory are skipped.
func LoadPath(ctx context.Context, root string, loaders map[string]Loader) ([]Document, error) {
	if loaders == nil {
		loaders = DefaultLoaders()
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return LoadFile(root, filepath.Base(root), loaders)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := loaders[strings.ToLower(filepath.Ext(path))]; ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var docs []Document
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		loaded, err := LoadFile(path, filepath.ToSlash(rel), loaders)
		if err != nil {
			return nil, err
		}
		docs = append(docs, loaded...)
	}
	return docs, nil
}

// LoadFile reads path and hands it to the loader registered for its extension.
func LoadFile(path, name string, loaders map[string]Loader) ([]Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	loader, ok := loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	docs, err := loader.Load(name, content)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = map[string]string{}
		}
		if _, ok := docs[i].Metadata[MetaSource]; !ok {
			docs[i].Metadata[MetaSource] = name
		}
	}
	return docs, nil
}

// JSONLLoader reads one JSON document per line with the fields id, title,
// url and text. Blank lines are ignored.
type JSONLLoader struct{}

// Load implements Loader.
func (JSONLLoader) Load(name string, content []byte) ([]Document, error) {
	var docs []Document
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var d Document
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if d.ID == "" {
			d.ID = fmt.Sprintf("%s:%d", docIDFromName(name), line)
		}
		docs = append(docs, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// TextLoader treats the whole file as one document titled after the file.
type TextLoader struct{}

// Load implements Loader.
func (TextLoader) Load(name string, content []byte) ([]Document, error) {
	return []Document{{
		ID:    docIDFromName(name),
		Title: titleFromName(name),
		Text:  string(content),
	}}, nil
}

// HTMLLoader extracts the main article text with readability.
type HTMLLoader struct {
	// BaseURL, joined with the file name, becomes the document URL.
	BaseURL string
}

// Load implements Loader.
func (l HTMLLoader) Load(name string, content []byte) ([]Document, error) {
	pageURL := &url.URL{Scheme: "file", Path: "/" + filepath.ToSlash(name)}
	if l.BaseURL != "" {
		u, err := url.Parse(strings.TrimRight(l.BaseURL, "/") + "/" + name)
		if err != nil {
			return nil, err
		}
		pageURL = u
	}
	article, err := readability.FromReader(bytes.NewReader(content), pageURL)
	if err != nil {
		return nil, fmt.Errorf("readability: %w", err)
	}

	doc := Document{
		ID:    docIDFromName(name),
		Title: strings.TrimSpace(article.Title),
		Text:  strings.TrimSpace(article.TextContent),
	}
	if doc.Title == "" {
		doc.Title = titleFromName(name)
	}
	if l.BaseURL != "" {
		doc.URL = pageURL.String()
	}
	return []Document{doc}, nil
}

// MarkdownLoader renders Markdown to plain text. The first heading becomes
// the title.
type MarkdownLoader struct{}

// Load implements Loader.
func (MarkdownLoader) Load(name string, content []byte) ([]Document, error) {
	title, body := markdownText(content)
	if title == "" {
		title = titleFromName(name)
	}
	return []Document{{
		ID:    docIDFromName(name),
		Title: title,
		Text:  body,
	}}, nil
}

func markdownText(src []byte) (string, string) {
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	var (
		title string
		out   strings.Builder
	)
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				out.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					out.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				out.Write(node.Value)
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					out.Write(seg.Value(src))
				}
				out.WriteString("\n")
				return ast.WalkSkipChildren, nil
			}
		case *ast.Heading:
			if entering && title == "" && node.Level <= 2 {
				title = headingText(node, src)
			}
		}
		if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			out.WriteString("\n\n")
		}
		return ast.WalkContinue, nil
	})
	return title, normalizeBlankLines(out.String())
}

func headingText(h *ast.Heading, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(h, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			b.Write(t.Segment.Value(src))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// PDFLoader extracts plain text page by page. Unreadable pages are skipped.
type PDFLoader struct{}

// Load implements Loader.
func (PDFLoader) Load(name string, content []byte) ([]Document, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("empty PDF content")
	}
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(pageText)
	}
	return []Document{{
		ID:    docIDFromName(name),
		Title: titleFromName(name),
		Text:  b.String(),
	}}, nil
}

func docIDFromName(name string) string {
	return strings.TrimSuffix(filepath.ToSlash(name), filepath.Ext(name))
}

func titleFromName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(base))
}

func normalizeBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
