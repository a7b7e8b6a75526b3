package extract

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	readability "github.com/go-shiori/go-readability"
	"github.com/ysmood/gson"

	herrors "github.com/ForumScholar/GroupHarvest/internal/errors"
	"github.com/ForumScholar/GroupHarvest/internal/logger"
)

// Selector fallback chains. Discussion forum frontends rotate their
// generated class names between deployments, so each lookup tries a
// chain of selectors from most to least specific.
var (
	rowSelectors = []string{
		"div[role='listitem']",
		"div.X9BDdd",
		"tr.thread-row",
	}
	titleSelectors = []string{
		"div.HzV7m-bN97Pc",
		"span.o1DPKc",
		"a.thread-title",
	}
	dateSelectors = []string{
		"span.zX2W9c",
		"span.CoWm1d",
		"td.lastPostDate",
	}
	authorSelectors = []string{
		"div.zogQUb",
		"span.vT8zce",
		"td.author",
	}
	nextPageSelectors = []string{
		"a[aria-label='Next page']",
		"div[aria-label='Next page']",
		"a[rel='next']",
	}
	detailSelectors = []string{
		"div[role='main']",
		"main",
		"article",
	}
)

// GroupExtractor drives a headless browser against a discussion group
// frontend. One page is held open per collection for listing and
// pagination; detail fetches open short-lived pages of their own.
type GroupExtractor struct {
	browser *Browser
	pages   map[string]*rod.Page
	settle  time.Duration
	log     *logger.Logger
}

// NewGroupExtractor wraps an already-connected browser.
func NewGroupExtractor(browser *Browser, settle time.Duration, log *logger.Logger) *GroupExtractor {
	if settle <= 0 {
		settle = 5 * time.Second
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &GroupExtractor{
		browser: browser,
		pages:   make(map[string]*rod.Page),
		settle:  settle,
		log:     log.WithComponent("extract"),
	}
}

// listing returns the open listing page for the collection, navigating
// to it on first use.
func (g *GroupExtractor) listing(ctx context.Context, collection string) (*rod.Page, error) {
	if page, ok := g.pages[collection]; ok {
		return page, nil
	}

	page, err := g.browser.NewPage()
	if err != nil {
		return nil, herrors.NewBrowserError(collection, "open listing page", err)
	}
	page = page.Context(ctx)

	nav := page.Timeout(g.browser.config.Timeout)
	if err := nav.Navigate(collection); err != nil {
		_ = page.Close()
		return nil, herrors.NewBrowserError(collection, "navigate to listing", err)
	}
	if err := nav.WaitLoad(); err != nil {
		_ = page.Close()
		return nil, herrors.NewTimeoutError(collection, "wait for listing load", err)
	}
	sleep(ctx, g.settle)

	g.pages[collection] = page
	return page, nil
}

// ListCandidates reads the currently rendered listing rows.
func (g *GroupExtractor) ListCandidates(ctx context.Context, collection string) ([]Candidate, error) {
	page, err := g.listing(ctx, collection)
	if err != nil {
		return nil, err
	}

	html, err := page.HTML()
	if err != nil {
		return nil, herrors.NewExtractionError(collection, "read listing html", err)
	}

	candidates, err := ParseCandidates(html, collection)
	if err != nil {
		return nil, err
	}

	g.log.Event(logger.DebugLevel).Str("collection", collection).Int("candidates", len(candidates)).Msg("Listing parsed")
	return candidates, nil
}

// ParseCandidates extracts item summaries from listing HTML. Rows
// without a resolvable link are skipped.
func ParseCandidates(html, baseURL string) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, herrors.NewExtractionError(baseURL, "parse listing html", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, herrors.NewExtractionError(baseURL, "parse base url", err)
	}

	var rows *goquery.Selection
	for _, sel := range rowSelectors {
		rows = doc.Find(sel)
		if rows.Length() > 0 {
			break
		}
	}
	if rows == nil || rows.Length() == 0 {
		return nil, nil
	}

	candidates := make([]Candidate, 0, rows.Length())
	rows.Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a[href]").First()
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}

		candidates = append(candidates, Candidate{
			URL:    base.ResolveReference(ref).String(),
			Title:  firstText(row, titleSelectors, link.Text()),
			Date:   firstText(row, dateSelectors, ""),
			Author: firstText(row, authorSelectors, ""),
		})
	})

	return candidates, nil
}

// firstText returns the text of the first selector in the chain that
// matches under sel, or the fallback.
func firstText(sel *goquery.Selection, chain []string, fallback string) string {
	for _, s := range chain {
		if found := sel.Find(s).First(); found.Length() > 0 {
			if text := strings.TrimSpace(found.Text()); text != "" {
				return text
			}
		}
	}
	return strings.TrimSpace(fallback)
}

// LoadMore scrolls the listing to its bottom and waits for lazy rows to
// render, reporting how many rows are now visible.
func (g *GroupExtractor) LoadMore(ctx context.Context, collection string) (int, error) {
	page, err := g.listing(ctx, collection)
	if err != nil {
		return 0, err
	}

	if _, err := page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
		return 0, herrors.NewBrowserError(collection, "scroll listing", err)
	}
	sleep(ctx, g.settle)

	return g.rowCount(page, collection)
}

// rowCount counts visible listing rows via the row selector chain.
func (g *GroupExtractor) rowCount(page *rod.Page, collection string) (int, error) {
	for _, sel := range rowSelectors {
		n, err := evalJSON(page, `(sel) => document.querySelectorAll(sel).length`, sel)
		if err != nil {
			return 0, herrors.NewBrowserError(collection, "count listing rows", err)
		}
		if n.Int() > 0 {
			return n.Int(), nil
		}
	}
	return 0, nil
}

// evalJSON runs js on the page and returns the decoded result.
func evalJSON(page *rod.Page, js string, args ...interface{}) (gson.JSON, error) {
	result, err := page.Eval(js, args...)
	if err != nil {
		return gson.JSON{}, err
	}
	return result.Value, nil
}

// AdvancePage clicks through to the next listing page. Returns false
// when no enabled next-page control exists.
func (g *GroupExtractor) AdvancePage(ctx context.Context, collection string) (bool, error) {
	page, err := g.listing(ctx, collection)
	if err != nil {
		return false, err
	}

	var next *rod.Element
	for _, sel := range nextPageSelectors {
		el, err := page.Timeout(2 * time.Second).Element(sel)
		if err != nil {
			continue
		}
		if disabled, _ := el.Attribute("aria-disabled"); disabled != nil && *disabled == "true" {
			continue
		}
		next = el
		break
	}
	if next == nil {
		return false, nil
	}

	if err := next.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, herrors.NewBrowserError(collection, "click next page", err)
	}
	if err := page.Timeout(g.browser.config.Timeout).WaitLoad(); err != nil {
		return false, herrors.NewTimeoutError(collection, "wait for next page", err)
	}
	sleep(ctx, g.settle)

	g.log.Event(logger.DebugLevel).Str("collection", collection).Msg("Advanced to next page")
	return true, nil
}

// FetchDetail opens the item in a fresh page and extracts its readable
// text. The detail selector chain is tried first; readability over the
// full document is the fallback.
func (g *GroupExtractor) FetchDetail(ctx context.Context, itemURL string) (string, error) {
	page, err := g.browser.NewPage()
	if err != nil {
		return "", herrors.NewBrowserError(itemURL, "open detail page", err)
	}
	defer func() { _ = page.Close() }()
	page = page.Context(ctx)

	nav := page.Timeout(g.browser.config.Timeout)
	if err := nav.Navigate(itemURL); err != nil {
		return "", herrors.NewBrowserError(itemURL, "navigate to item", err)
	}
	if err := nav.WaitLoad(); err != nil {
		return "", herrors.NewTimeoutError(itemURL, "wait for item load", err)
	}
	sleep(ctx, g.settle)

	for _, sel := range detailSelectors {
		el, err := page.Timeout(3 * time.Second).Element(sel)
		if err != nil {
			continue
		}
		text, err := el.Text()
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, nil
		}
	}

	// No known content container. Run readability over the whole
	// document before giving up.
	html, err := page.HTML()
	if err != nil {
		return "", herrors.NewExtractionError(itemURL, "read item html", err)
	}
	parsed, err := url.Parse(itemURL)
	if err != nil {
		return "", herrors.NewExtractionError(itemURL, "parse item url", err)
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		return "", herrors.NewExtractionError(itemURL, "extract item text", err)
	}

	return strings.TrimSpace(article.TextContent), nil
}

// Close releases all open listing pages. The browser itself is owned by
// the caller.
func (g *GroupExtractor) Close() error {
	for collection, page := range g.pages {
		_ = page.Close()
		delete(g.pages, collection)
	}
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
