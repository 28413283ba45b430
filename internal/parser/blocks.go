package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/postharvest/internal/types"
)

// SplitBlocks returns the outer HTML of every element matching selector, in document order.
// The markup is a full page snapshot; nothing is deduplicated here.
func SplitBlocks(markup, selector string) ([]types.PostBlock, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}

	var blocks []types.PostBlock
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		html, err := goquery.OuterHtml(sel)
		if err != nil || html == "" {
			return
		}
		blocks = append(blocks, types.PostBlock(html))
	})

	return blocks, nil
}
