// Package source loads podcast source content from text and markdown files.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	// ErrEmptySource is returned when the loaded content is blank.
	ErrEmptySource = errors.New("source content is empty")
	// ErrUnsupportedType is returned for files that are neither text nor markdown.
	ErrUnsupportedType = errors.New("unsupported source type")
)

// DefaultFileTypes are the extensions Load understands.
var DefaultFileTypes = []string{".txt", ".md", ".markdown"}

// Document is the extracted text of one file.
type Document struct {
	Path string
	Text string
}

// Load reads every path and returns the extracted documents in argument order.
// Directories are expanded non-recursively with the default file types.
func Load(paths ...string) ([]Document, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if info.IsDir() {
			found, err := Directory{}.Files(p)
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
			continue
		}
		files = append(files, p)
	}

	docs := make([]Document, 0, len(files))
	for _, f := range files {
		doc, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, ErrEmptySource
	}
	return docs, nil
}

// LoadFile extracts the text of a single file.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read source %s: %w", path, err)
	}
	var body string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		body = string(data)
	case ".md", ".markdown":
		body = MarkdownText(data)
	default:
		return Document{}, fmt.Errorf("%w: %s", ErrUnsupportedType, path)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return Document{}, fmt.Errorf("%w: %s", ErrEmptySource, path)
	}
	return Document{Path: path, Text: body}, nil
}

// Join concatenates document texts separated by blank lines.
func Join(docs []Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Text
	}
	return strings.Join(parts, "\n\n")
}

// Directory lists the source files of a directory.
type Directory struct {
	Recursive bool
	// FileTypes filters by extension; empty means DefaultFileTypes.
	FileTypes []string
}

// Files returns the matching files under dir, sorted. Hidden entries are
// skipped.
func (d Directory) Files(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("directory does not exist: %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dir)
	}

	exts := d.extensions()
	var out []string
	err = filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		hidden := strings.HasPrefix(entry.Name(), ".")
		if entry.IsDir() {
			if hidden || !d.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || !entry.Type().IsRegular() {
			return nil
		}
		if _, ok := exts[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}

func (d Directory) extensions() map[string]struct{} {
	types := d.FileTypes
	if len(types) == 0 {
		types = DefaultFileTypes
	}
	exts := make(map[string]struct{}, len(types))
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, ".") {
			t = "." + t
		}
		exts[t] = struct{}{}
	}
	return exts
}

// MarkdownText renders markdown to plain text: formatting is dropped, block
// elements are separated by blank lines and code blocks are kept verbatim.
func MarkdownText(src []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				b.Write(node.Label(src))
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
				b.WriteByte('\n')
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		default:
			if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
				_, isItem := n.(*ast.ListItem)
				_, inItem := n.Parent().(*ast.ListItem)
				switch {
				case inItem && n.NextSibling() == nil:
					// the item itself ends the line
				case isItem || inItem:
					b.WriteByte('\n')
				default:
					b.WriteString("\n\n")
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return collapseBlankLines(b.String())
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
