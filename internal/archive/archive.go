// Package archive stores rendered digests as date-named files.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/TobiSchelling/techdigest/internal/article"
	"github.com/TobiSchelling/techdigest/internal/render"
)

var (
	// ErrNotFound is returned when no digest exists for a date.
	ErrNotFound = errors.New("digest not found")

	// ErrInvalidDate is returned for dates that are not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid digest date")
)

var digestName = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.html$`)

// Entry is one archived digest.
type Entry struct {
	Date    string `json:"date"`
	Path    string `json:"-"`
	Display string `json:"display"`
	HasMD   bool   `json:"markdown"`
}

// Store reads and writes digests in one directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created on
// first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the archive directory.
func (s *Store) Dir() string { return s.dir }

// PathFor returns the HTML path for date.
func (s *Store) PathFor(date string) string {
	return filepath.Join(s.dir, date+".html")
}

// Write stores the HTML digest for date, replacing any existing one. The
// document is written to a temporary file and renamed into place.
func (s *Store) Write(date, html string) (string, error) {
	return s.write(date, ".html", html)
}

// WriteMarkdown stores the Markdown export for date.
func (s *Store) WriteMarkdown(date, md string) (string, error) {
	return s.write(date, ".md", md)
}

func (s *Store) write(date, ext, content string) (string, error) {
	if !article.ValidDate(date) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive dir: %w", err)
	}

	final := filepath.Join(s.dir, date+ext)
	tmp, err := os.CreateTemp(s.dir, "."+date+"-*"+ext+".tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing digest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing digest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing digest: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		return "", fmt.Errorf("moving digest into place: %w", err)
	}
	return final, nil
}

// List returns archived digests, newest first. Files not named
// YYYY-MM-DD.html are ignored. A missing directory yields an empty list.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading archive dir: %w", err)
	}

	names := make(map[string]bool, len(dirEntries))
	for _, de := range dirEntries {
		names[de.Name()] = true
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		m := digestName.FindStringSubmatch(de.Name())
		if m == nil || !article.ValidDate(m[1]) {
			continue
		}
		entries = append(entries, Entry{
			Date:    m[1],
			Path:    filepath.Join(s.dir, de.Name()),
			Display: render.DisplayDate(m[1]),
			HasMD:   names[m[1]+".md"],
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Date > entries[j].Date })
	return entries, nil
}

// Read returns the full HTML document for date.
func (s *Store) Read(date string) (string, error) {
	return s.read(date, ".html")
}

// ReadMarkdown returns the Markdown export for date.
func (s *Store) ReadMarkdown(date string) (string, error) {
	return s.read(date, ".md")
}

func (s *Store) read(date, ext string) (string, error) {
	if !article.ValidDate(date) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, date+ext))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, date)
		}
		return "", fmt.Errorf("reading digest: %w", err)
	}
	return string(data), nil
}

// Body returns the content inside <body> of the digest for date.
func (s *Store) Body(date string) (string, error) {
	doc, err := s.Read(date)
	if err != nil {
		return "", err
	}
	return ExtractBody(doc), nil
}

// ExtractBody returns the markup between <body ...> and </body>, or the
// whole document when it has no body element. Tag names match
// case-insensitively; offsets always index the original bytes.
func ExtractBody(doc string) string {
	start := indexASCIIFold(doc, "<body", false)
	if start < 0 {
		return doc
	}
	open := strings.IndexByte(doc[start:], '>')
	if open < 0 {
		return doc
	}
	contentStart := start + open + 1
	end := indexASCIIFold(doc, "</body>", true)
	if end < contentStart {
		return doc[contentStart:]
	}
	return doc[contentStart:end]
}

// indexASCIIFold finds tag in s ignoring ASCII case. tag must be
// lower-case ASCII. With last set it returns the final match.
func indexASCIIFold(s, tag string, last bool) int {
	found := -1
	for i := 0; i+len(tag) <= len(s); i++ {
		if hasPrefixASCIIFold(s[i:], tag) {
			if !last {
				return i
			}
			found = i
		}
	}
	return found
}

func hasPrefixASCIIFold(s, prefix string) bool {
	for j := 0; j < len(prefix); j++ {
		c := s[j]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != prefix[j] {
			return false
		}
	}
	return true
}
