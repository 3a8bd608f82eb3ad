// Package staticindex builds and queries the full-text index over the
// site's rendered static pages. The index is produced offline by Build and
// read at runtime through Bleve, which satisfies search.StaticProvider.
package staticindex

import (
	"errors"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// MetaFile is the file every built index directory contains. Its presence
// is what Probe checks.
const MetaFile = "index_meta.json"

// Page is one indexed static page.
type Page struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Content  string `json:"content"`
}

var errNoText = errors.New("page has no indexable text")

// newMapping analyzes title and content as English text and keeps url and
// category as exact keywords. All four are stored for hit mapping.
func newMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = "en"
	text.Store = true
	text.IncludeTermVectors = true

	keyword := bleve.NewKeywordFieldMapping()
	keyword.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("url", keyword)
	doc.AddFieldMappingsAt("category", keyword)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = "en"
	return im
}

// extractPage parses one rendered HTML document. skip is true for pages
// that opt out with data-search-ignore on <html> or <body>.
//
// Title comes from <title>, else the first <h1>. Category comes from
// <meta name="search:category">, else the first data-search-category
// attribute. Text is taken from <main>, else <body>, minus scripts and any
// element marked data-search-ignore.
func extractPage(r io.Reader, url string) (p Page, skip bool, err error) {
	utf8, err := charset.NewReader(r, "text/html")
	if err != nil {
		return Page{}, false, err
	}
	doc, err := goquery.NewDocumentFromReader(utf8)
	if err != nil {
		return Page{}, false, err
	}
	if doc.Find("html[data-search-ignore], body[data-search-ignore]").Length() > 0 {
		return Page{}, true, nil
	}

	title := collapse(doc.Find("title").First().Text())
	if title == "" {
		title = collapse(doc.Find("h1").First().Text())
	}

	category, _ := doc.Find(`meta[name="search:category"]`).First().Attr("content")
	if category == "" {
		category, _ = doc.Find("[data-search-category]").First().Attr("data-search-category")
	}

	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	root.Find("script, style, noscript, template, [data-search-ignore]").Remove()
	content := textOf(root)

	if title == "" && content == "" {
		return Page{}, false, errNoText
	}
	if title == "" {
		title = url
	}
	return Page{
		URL:      url,
		Title:    title,
		Category: strings.TrimSpace(category),
		Content:  content,
	}, false, nil
}

// textOf joins every text node under s with single spaces, so adjacent
// block elements do not run together.
func textOf(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return collapse(b.String())
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }

// pageURL maps a path relative to the site root onto the URL it is served
// at: "index.html" -> "/", "about/index.html" -> "/about/", anything else
// keeps its file name.
func pageURL(rel string) string {
	rel = filepath.ToSlash(rel)
	dir, file := path.Split(rel)
	if strings.EqualFold(file, "index.html") {
		return "/" + dir
	}
	return "/" + rel
}
