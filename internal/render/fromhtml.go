package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/markdown"
)

// MarkdownFromHTML rebuilds a Markdown view of a stored digest document.
// It is used for digests archived without a Markdown export.
func MarkdownFromHTML(doc string) (string, error) {
	dom, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parsing digest: %w", err)
	}

	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	md.H1("Tech Digest")
	md.PlainText("")
	if date := strings.TrimSpace(dom.Find(".header .date").First().Text()); date != "" {
		md.PlainText(markdown.Italic(date))
		md.PlainText("")
	}

	dom.Find("section.section").Each(func(_ int, sec *goquery.Selection) {
		md.H2(strings.TrimSpace(sec.Find("h2").First().Text()))
		md.PlainText("")

		sec.Find(".article").Each(func(_ int, art *goquery.Selection) {
			link := art.Find(".article-title a").First()
			title := strings.TrimSpace(link.Text())
			if href, ok := link.Attr("href"); ok && href != "#" && href != "" {
				md.H3(markdown.Link(title, href))
			} else {
				md.H3(title)
			}
			md.PlainText("")

			for _, class := range []string{".article-meta", ".authors"} {
				if text := strings.TrimSpace(art.Find(class).First().Text()); text != "" {
					md.PlainText(markdown.Italic(text))
					md.PlainText("")
				}
			}

			art.Find(".article-summary").Children().Each(func(_ int, block *goquery.Selection) {
				switch goquery.NodeName(block) {
				case "ul":
					var items []string
					block.Find("li").Each(func(_ int, li *goquery.Selection) {
						items = append(items, strings.TrimSpace(li.Text()))
					})
					md.BulletList(items...)
				case "strong":
					md.PlainText(markdown.Bold(strings.TrimSpace(block.Text())))
				default:
					md.PlainText(strings.TrimSpace(block.Text()))
				}
				md.PlainText("")
			})

			art.Find(".links > a").Each(func(_ int, a *goquery.Selection) {
				if strings.TrimSpace(a.Text()) != "Comments" {
					return
				}
				if href, ok := a.Attr("href"); ok {
					md.PlainText(markdown.Link("Comments", href))
					md.PlainText("")
				}
			})
		})
	})

	if err := md.Build(); err != nil {
		return "", fmt.Errorf("building markdown: %w", err)
	}
	return buf.String(), nil
}
