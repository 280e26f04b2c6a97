package bitcointalk

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/coregx/forumwatch"
	"github.com/coregx/forumwatch/model"
)

// Board listing row layout (cells following the subject cell).
const (
	starterCell = iota
	repliesCell
	viewsCell
)

// Extractor is a forumwatch.Extractor for SMF board and topic pages.
type Extractor struct{}

// NewExtractor creates a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractListing returns one RawTopic per topic row of a board page.
// Any row with missing or non-numeric counters fails the whole page, as does
// a page without topic rows.
func (e *Extractor) ExtractListing(page []byte) ([]model.RawTopic, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, forumwatch.NewErrorWithCause(forumwatch.ErrCodeParse, "failed to parse listing markup", err)
	}

	var (
		topics  []model.RawTopic
		rowErr  error
		anchors = doc.Find(`span[id^="msg_"] > a`)
	)

	anchors.EachWithBreak(func(i int, a *goquery.Selection) bool {
		topic, err := listingRow(a)
		if err != nil {
			rowErr = forumwatch.NewErrorWithCause(forumwatch.ErrCodeParse, fmt.Sprintf("listing row %d", i+1), err)
			return false
		}
		topics = append(topics, topic)
		return true
	})

	if rowErr != nil {
		return nil, rowErr
	}
	if len(topics) == 0 {
		return nil, forumwatch.NewError(forumwatch.ErrCodeParse, "no topic rows found on listing page")
	}
	return topics, nil
}

// listingRow reads one row from its subject anchor. The anchor sits in a
// span inside the subject cell; starter, replies and views cells follow.
func listingRow(a *goquery.Selection) (model.RawTopic, error) {
	href, ok := a.Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return model.RawTopic{}, fmt.Errorf("subject link has no href")
	}

	cells := a.Parent().Parent().NextAllFiltered("td")
	if cells.Length() <= viewsCell {
		return model.RawTopic{}, fmt.Errorf("%s: expected at least %d cells after subject, got %d", href, viewsCell+1, cells.Length())
	}

	replies, err := counter(cells.Eq(repliesCell))
	if err != nil {
		return model.RawTopic{}, fmt.Errorf("%s: replies: %w", href, err)
	}
	views, err := counter(cells.Eq(viewsCell))
	if err != nil {
		return model.RawTopic{}, fmt.Errorf("%s: views: %w", href, err)
	}

	return model.RawTopic{
		URL:     href,
		Title:   strings.TrimSpace(a.Text()),
		Replies: replies,
		Views:   views,
	}, nil
}

func counter(cell *goquery.Selection) (int, error) {
	text := strings.TrimSpace(cell.Text())
	n, err := strconv.Atoi(strings.ReplaceAll(text, ",", ""))
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", text)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count: %d", n)
	}
	return n, nil
}

// ExtractCreated returns the text of the first div after the first post's
// subject, e.g. "March 05, 2024, 02:32:10 PM".
func (e *Extractor) ExtractCreated(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", forumwatch.NewErrorWithCause(forumwatch.ErrCodeParse, "failed to parse topic markup", err)
	}

	subject := doc.Find("div.subject").First()
	if subject.Length() == 0 {
		return "", forumwatch.NewError(forumwatch.ErrCodeParse, "topic page has no subject")
	}

	created := strings.TrimSpace(subject.NextAllFiltered("div").First().Text())
	if created == "" {
		return "", forumwatch.ErrCreatedMissing
	}
	return created, nil
}
