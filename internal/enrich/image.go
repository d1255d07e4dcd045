package enrich

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractImage returns the page's preview image: og:image, then
// twitter:image, then the first <img src>. A candidate that cannot be
// made absolute (data: URLs) is skipped. The result is empty when no
// candidate is usable.
func ExtractImage(doc *goquery.Document, pageURL *url.URL) string {
	candidates := []string{
		metaContent(doc, `meta[property="og:image"]`),
		metaContent(doc, `meta[name="twitter:image"]`),
		metaContent(doc, `meta[property="twitter:image"]`),
	}
	if src, ok := doc.Find("img[src]").First().Attr("src"); ok {
		candidates = append(candidates, src)
	}

	for _, c := range candidates {
		if c = strings.TrimSpace(c); c == "" {
			continue
		}
		if resolved := resolveImageURL(c, pageURL); resolved != "" {
			return resolved
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return v
}

// resolveImageURL makes src absolute: "//host/x" gets https, "/x" gets
// the page's scheme and host, other relative paths resolve against the page.
func resolveImageURL(src string, pageURL *url.URL) string {
	switch {
	case strings.HasPrefix(src, "//"):
		return "https:" + src
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return src
	case strings.HasPrefix(src, "data:"):
		return ""
	}
	if pageURL == nil {
		return ""
	}
	if strings.HasPrefix(src, "/") {
		return pageURL.Scheme + "://" + pageURL.Host + src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return pageURL.ResolveReference(ref).String()
}
