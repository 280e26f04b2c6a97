package forumwatch

import (
	"context"

	"github.com/coregx/forumwatch/model"
)

// PageFetcher retrieves raw page content over the forum's transport.
// Transport or HTTP failures are returned as ErrCodeFetch errors.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Extractor converts raw page content into structured records.
// Unexpected markup is returned as an ErrCodeParse error.
type Extractor interface {
	// ExtractListing returns every topic row of a board listing page.
	ExtractListing(page []byte) ([]model.RawTopic, error)

	// ExtractCreated returns the free-text creation field of a topic page,
	// e.g. "March 05, 2024, 02:32:10 PM" or "Today at 14:32".
	ExtractCreated(page []byte) (string, error)
}
