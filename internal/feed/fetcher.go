// Package feed reads journal feeds and turns their entries into papers,
// scraping the article page when the feed carries no abstract.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"github.com/valpere/paperdigest/internal"
	"github.com/valpere/paperdigest/internal/config"
	"github.com/valpere/paperdigest/internal/errs"
)

// UntitledPaper is the title of entries that have none.
const UntitledPaper = "제목 없음"

// maxPageBytes bounds how much of an article page is read.
const maxPageBytes = 8 << 20

type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxPapers   int
	extractors  []config.Extractor
	readability bool
	logger      *slog.Logger
}

func NewFetcher(cfg config.JournalsConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fetcher{
		client:      &http.Client{Timeout: cfg.Timeout},
		userAgent:   cfg.UserAgent,
		maxPapers:   cfg.MaxPapersPerJournal,
		extractors:  cfg.Extractors,
		readability: cfg.ReadabilityFallback,
		logger:      logger.With("component", "feed"),
	}
}

// Entries fetches and parses the feed of j, keeping at most the configured
// number of entries in feed order.
func (f *Fetcher) Entries(ctx context.Context, j internal.Journal) ([]*gofeed.Item, error) {
	body, err := f.get(ctx, j.URL)
	if err != nil {
		return nil, err
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, errs.Transient("parse feed", fmt.Errorf("%s: %w", j.URL, err))
	}

	items := parsed.Items
	if f.maxPapers > 0 && len(items) > f.maxPapers {
		items = items[:f.maxPapers]
	}
	return items, nil
}

// EntryID is the ledger identifier of an entry: its GUID, else its link.
func EntryID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

// Paper builds the paper for item. The abstract is the entry description or
// content, falling back to the article page. It is empty when nothing could
// be found.
func (f *Fetcher) Paper(ctx context.Context, j internal.Journal, item *gofeed.Item) internal.Paper {
	p := internal.Paper{
		ID:        EntryID(item),
		Journal:   j.Name,
		Title:     strings.TrimSpace(item.Title),
		Link:      item.Link,
		Published: item.Published,
	}
	if p.Title == "" {
		p.Title = UntitledPaper
	}
	if p.Published == "" {
		p.Published = item.Updated
	}

	abstract := item.Description
	if strings.TrimSpace(abstract) == "" {
		abstract = item.Content
	}
	if strings.TrimSpace(abstract) == "" && p.Link != "" {
		abstract = f.scrapeAbstract(ctx, p.Link, j.URL)
	}
	p.Abstract = StripHTML(abstract)
	return p
}

func (f *Fetcher) scrapeAbstract(ctx context.Context, link, feedURL string) string {
	ext, ok := f.extractorFor(feedURL)
	if !ok && !f.readability {
		f.logger.Debug("no extractor for journal", "feed", feedURL)
		return ""
	}

	page, err := f.get(ctx, link)
	if err != nil {
		f.logger.Warn("abstract extraction failed", "link", link, "error", err)
		return ""
	}

	if ok {
		text, err := extractWithSelector(page, ext)
		if err != nil {
			f.logger.Warn("abstract extraction failed", "link", link, "error", err)
		}
		if text != "" {
			return text
		}
	}
	if f.readability {
		return extractWithReadability(page, link, f.logger)
	}
	return ""
}

// extractorFor returns the first extractor whose match string occurs in the
// feed URL.
func (f *Fetcher) extractorFor(feedURL string) (config.Extractor, bool) {
	for _, e := range f.extractors {
		if e.Match != "" && strings.Contains(feedURL, e.Match) {
			return e, true
		}
	}
	return config.Extractor{}, false
}

func extractWithReadability(page []byte, link string, logger *slog.Logger) string {
	pageURL, err := url.Parse(link)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(bytes.NewReader(page), pageURL)
	if err != nil {
		logger.Debug("readability extraction failed", "link", link, "error", err)
		return ""
	}
	if article.Excerpt != "" {
		return article.Excerpt
	}
	return article.TextContent
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return nil, errs.Configf("fetch", "bad URL %q: %w", target, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errs.Transient("fetch", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.Transient("fetch", fmt.Errorf("%s returned status %d", target, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, errs.Transient("fetch", fmt.Errorf("read body: %w", err))
	}
	return body, nil
}
