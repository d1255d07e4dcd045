package render

import (
	"bytes"
	"html"
	"html/template"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
)

// BlockKind is the structural role of a summary block.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockList
)

// Block is one structural piece of a summary.
type Block struct {
	Kind  BlockKind
	Text  string
	Items []string
}

const maxHeadingRunes = 50

// FormatSummary splits summary text into paragraphs, headings and lists.
// Lines starting with "•", "* " or "- " are list items; a blank line or
// any other line closes the list. A short line containing a colon is a
// heading. Remaining consecutive lines form one paragraph.
func FormatSummary(s string) []Block {
	var blocks []Block
	var para []string
	var list []string

	flushPara := func() {
		if len(para) > 0 {
			blocks = append(blocks, Block{Kind: BlockParagraph, Text: strings.Join(para, " ")})
			para = nil
		}
	}
	flushList := func() {
		if len(list) > 0 {
			blocks = append(blocks, Block{Kind: BlockList, Items: list})
			list = nil
		}
	}

	for _, raw := range strings.Split(s, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			flushPara()
			flushList()
			continue
		}

		if item, ok := bulletItem(line); ok {
			flushPara()
			if item != "" {
				list = append(list, item)
			}
			continue
		}
		flushList()

		if strings.Contains(line, ":") && utf8.RuneCountInString(line) < maxHeadingRunes {
			flushPara()
			blocks = append(blocks, Block{Kind: BlockHeading, Text: strings.TrimSpace(strings.ReplaceAll(line, "**", ""))})
			continue
		}
		para = append(para, line)
	}
	flushPara()
	flushList()
	return blocks
}

func bulletItem(line string) (string, bool) {
	switch {
	case strings.HasPrefix(line, "•"):
		return strings.TrimSpace(strings.TrimPrefix(line, "•")), true
	case strings.HasPrefix(line, "* "), strings.HasPrefix(line, "- "):
		return strings.TrimSpace(line[2:]), true
	}
	return "", false
}

var md = goldmark.New()

// inline renders text as inline markdown. The text is escaped first so
// raw HTML shows up as literal text.
func inline(text string) template.HTML {
	escaped := html.EscapeString(text)
	var buf bytes.Buffer
	if err := md.Convert([]byte(escaped), &buf); err != nil {
		return template.HTML(escaped) //nolint: gosec
	}
	out := strings.TrimSpace(buf.String())
	if strings.HasPrefix(out, "<p>") && strings.HasSuffix(out, "</p>") && strings.Count(out, "<p>") == 1 {
		return template.HTML(strings.TrimSuffix(strings.TrimPrefix(out, "<p>"), "</p>")) //nolint: gosec
	}
	return template.HTML(escaped) //nolint: gosec
}
