package parser

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/postharvest/internal/config"
	"github.com/IshaanNene/postharvest/internal/types"
)

// XPath expressions evaluated relative to the article node of a block.
const (
	xpathArticle    = "//article"
	xpathText       = ".//div[@data-testid='tweetText']"
	xpathTime       = ".//time"
	xpathTimeLink   = ".//a[@href][.//time]"
	xpathStatusLink = ".//a[contains(@href, '/status/')]"
	xpathAnyLink    = ".//a[@href]"
	xpathImages     = ".//img[@src]"
)

// Extractor converts post blocks into records.
type Extractor struct {
	linkBase    *url.URL
	marker      string
	titleLength int
	location    string
	source      string
	logger      *slog.Logger
}

// NewExtractor creates an Extractor from parser and harvest settings.
func NewExtractor(pc config.ParserConfig, hc config.HarvestConfig, logger *slog.Logger) (*Extractor, error) {
	base, err := url.Parse(pc.LinkBase)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		linkBase:    base,
		marker:      pc.MediaMarker,
		titleLength: pc.TitleLength,
		location:    hc.Location,
		source:      hc.Source,
		logger:      logger.With("component", "extractor"),
	}, nil
}

// Extract builds a record for one block. Each field is best-effort; only a block
// without an article element is rejected. The returned candidates are the image
// URLs carrying the media marker, in document order.
func (e *Extractor) Extract(eventName string, block types.PostBlock) (*types.PostRecord, []types.MediaCandidate, error) {
	doc, err := htmlquery.Parse(strings.NewReader(string(block)))
	if err != nil {
		return nil, nil, err
	}
	article := htmlquery.FindOne(doc, xpathArticle)
	if article == nil {
		return nil, nil, types.ErrNoArticle
	}

	description := e.text(article)
	record := &types.PostRecord{
		EventName:   eventName,
		Title:       types.Truncate(description, e.titleLength),
		Description: description,
		Timestamp:   e.timestamp(article),
		Location:    e.location,
		Source:      e.source,
		Permalink:   e.permalink(article),
		MediaFiles:  []string{},
	}

	return record, e.candidates(article), nil
}

func (e *Extractor) text(article *html.Node) string {
	node := htmlquery.FindOne(article, xpathText)
	if node == nil {
		return ""
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(node)), " ")
}

func (e *Extractor) timestamp(article *html.Node) string {
	node := htmlquery.FindOne(article, xpathTime)
	if node == nil {
		return types.NotFound
	}
	if dt := strings.TrimSpace(htmlquery.SelectAttr(node, "datetime")); dt != "" {
		return dt
	}
	return types.NotFound
}

// permalink prefers the anchor wrapping the post time, which is the status link
// on the feed; the first anchor is usually the author profile.
func (e *Extractor) permalink(article *html.Node) string {
	for _, expr := range []string{xpathTimeLink, xpathStatusLink, xpathAnyLink} {
		node := htmlquery.FindOne(article, expr)
		if node == nil {
			continue
		}
		href := strings.TrimSpace(htmlquery.SelectAttr(node, "href"))
		if href == "" {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			e.logger.Debug("unparseable href", "href", href, "error", err)
			continue
		}
		return e.linkBase.ResolveReference(ref).String()
	}
	return types.NotFound
}

func (e *Extractor) candidates(article *html.Node) []types.MediaCandidate {
	var out []types.MediaCandidate
	for _, img := range htmlquery.Find(article, xpathImages) {
		src := htmlquery.SelectAttr(img, "src")
		if strings.Contains(src, e.marker) {
			out = append(out, types.MediaCandidate(src))
		}
	}
	return out
}
