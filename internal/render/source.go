// Package render drives the page that post blocks are harvested from.
package render

import "context"

// Source is a scrollable rendered page. The scroll loop only depends on this
// interface, so tests substitute a scripted implementation for the browser.
type Source interface {
	// Load navigates to url and waits for the initial render.
	Load(ctx context.Context, url string) error
	// ScrollToBottom asks the page to load more content.
	ScrollToBottom(ctx context.Context) error
	// CurrentMarkup returns the rendered document as HTML.
	CurrentMarkup(ctx context.Context) (string, error)
	// GrowthSignal returns the current scrollable height of the document.
	GrowthSignal(ctx context.Context) (int, error)
}
