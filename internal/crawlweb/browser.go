package crawlweb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

func bytesReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

// ErrBrowserDisabled indicates rendering has been disabled via configuration.
var ErrBrowserDisabled = errors.New("crawlweb: headless browser disabled")

// Browser loads a page, reads its meta content, and extracts internal link
// candidates. It exists as an interface so the worker's fetch phase can be
// tested against a fake without a real Chrome instance.
type Browser interface {
	Load(ctx context.Context, rawURL string) (Page, error)
	ReadMeta(page Page) (title, description string)
	ExtractLinks(page Page) []Candidate
	Close(ctx context.Context) error
}

// Candidate is a raw, not-yet-normalized link discovered on a page.
type Candidate struct {
	URL  string
	Text string
	Kind LinkKind
}

// ChromedpBrowser implements Browser using headless Chrome, grounded on
// the teacher's ChromedpRenderer (internal/crawler/renderer_chromedp.go):
// same allocator/context/semaphore shape, generalized to escalate through
// navigation-committed, DOM-loaded, and a brief network-idle wait per
// spec.md Section 4.7 step 1, and to also hook SPA navigation intents.
type ChromedpBrowser struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	sem             chan struct{}
	timeout         time.Duration
	userAgent       string
}

// NewChromedpBrowser starts the headless allocator. concurrency <= 0
// disables the browser.
func NewChromedpBrowser(concurrency int, timeout time.Duration, userAgent string, logger *zap.Logger) (*ChromedpBrowser, error) {
	if concurrency <= 0 {
		return nil, ErrBrowserDisabled
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(userAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &ChromedpBrowser{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		sem:             make(chan struct{}, concurrency),
		timeout:         timeout,
		userAgent:       userAgent,
	}, nil
}

// Close tears down the allocator and browser contexts.
func (b *ChromedpBrowser) Close(ctx context.Context) error {
	if b == nil {
		return nil
	}
	b.browserCancel()
	b.allocatorCancel()
	select {
	case <-ctx.Done():
	default:
	}
	return nil
}

type responseMeta struct {
	once       sync.Once
	statusCode int
	headers    http.Header
	url        string
}

// Load navigates to rawURL, escalating from navigation-committed to
// DOM-ready and returns the rendered DOM as the page body.
func (b *ChromedpBrowser) Load(ctx context.Context, rawURL string) (Page, error) {
	if b == nil {
		return Page{}, ErrBrowserDisabled
	}
	select {
	case b.sem <- struct{}{}:
		defer func() { <-b.sem }()
	case <-ctx.Done():
		return Page{}, fmt.Errorf("acquire browser slot: %w", ctx.Err())
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	taskCtx, cancelTask := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTask()

	meta := &responseMeta{headers: make(http.Header)}
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		meta.once.Do(func() {
			meta.statusCode = int(resp.Response.Status)
			meta.url = resp.Response.URL
			for k, v := range resp.Response.Headers {
				meta.headers.Add(k, fmt.Sprint(v))
			}
		})
	})

	start := time.Now()
	var html string
	var spaIntentsJSON string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(b.userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(150 * time.Millisecond), // brief network-idle grace period
		// installed into the loaded document (a script evaluated before
		// Navigate would be discarded with the blank page it ran in).
		installSPANavHooks(),
		probeClickables(),
		// captured before cancelTab tears the tab context down below, since
		// window.__spaNavIntents lives only as long as the tab does.
		chromedp.Evaluate(`JSON.stringify(window.__spaNavIntents || [])`, &spaIntentsJSON),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return Page{}, fmt.Errorf("chromedp run %s: %w", rawURL, err)
	}

	finalURL := rawURL
	if meta.url != "" {
		finalURL = meta.url
	}
	var spaIntents []string
	if spaIntentsJSON != "" {
		_ = json.Unmarshal([]byte(spaIntentsJSON), &spaIntents)
	}
	return Page{
		URL:           rawURL,
		FinalURL:      finalURL,
		StatusCode:    meta.statusCode,
		Headers:       meta.headers,
		Body:          []byte(html),
		UsedJS:        true,
		FetchedAt:     start.UTC(),
		Duration:      time.Since(start),
		SPANavIntents: spaIntents,
	}, nil
}

// installSPANavHooks records history.pushState/replaceState,
// location.assign/replace, and window.open calls onto a global array
// before any probe click occurs, per spec.md Section 4.7 step 6's
// "hooked before any probe click" requirement.
func installSPANavHooks() chromedp.Action {
	const script = `(() => {
		window.__spaNavIntents = window.__spaNavIntents || [];
		const record = (url) => { if (url) window.__spaNavIntents.push(String(url)); };
		const origPush = history.pushState;
		history.pushState = function(state, title, url) { record(url); return origPush.apply(this, arguments); };
		const origReplace = history.replaceState;
		history.replaceState = function(state, title, url) { record(url); return origReplace.apply(this, arguments); };
		const origAssign = location.assign.bind(location);
		location.assign = function(url) { record(url); };
		const origLocReplace = location.replace.bind(location);
		location.replace = function(url) { record(url); };
		const origOpen = window.open;
		window.open = function(url) { record(url); return null; };
	})();`
	return chromedp.Evaluate(script, nil)
}

// probeClickables dispatches a synthetic click at a bounded number of
// interactive, non-anchor elements so that JS-driven navigation (buttons
// wired to pushState/location.assign/window.open rather than a plain
// href) has a chance to fire before installSPANavHooks' recordings are
// read. Anchors are excluded: their href is already picked up by
// extractLinks directly, and a real click on one would navigate the tab
// away before OuterHTML runs.
func probeClickables() chromedp.Action {
	const script = `(() => {
		const els = document.querySelectorAll('[onclick], [role="button"], [role="link"]');
		let n = 0;
		for (const el of els) {
			if (n >= 25) break;
			try {
				el.dispatchEvent(new MouseEvent('click', {bubbles: true, cancelable: true}));
			} catch (e) {}
			n++;
		}
	})();`
	return chromedp.Evaluate(script, nil)
}

// ReadMeta extracts title/description in priority order:
// <meta name=title>, <meta property=og:title>, document.title (approximated
// here via <title>), and their description equivalents, per spec.md
// Section 4.7 step 2.
func (b *ChromedpBrowser) ReadMeta(page Page) (string, string) {
	return readMeta(page)
}

func readMeta(page Page) (string, string) {
	doc, err := goquery.NewDocumentFromReader(bytesReader(page.Body))
	if err != nil {
		return "", ""
	}
	title := firstNonEmpty(
		attrOf(doc, `meta[name="title"]`, "content"),
		attrOf(doc, `meta[property="og:title"]`, "content"),
		strings.TrimSpace(doc.Find("title").First().Text()),
	)
	description := firstNonEmpty(
		attrOf(doc, `meta[name="description"]`, "content"),
		attrOf(doc, `meta[property="og:description"]`, "content"),
	)
	return title, description
}

func attrOf(doc *goquery.Document, selector, attr string) string {
	val, _ := doc.Find(selector).First().Attr(attr)
	return strings.TrimSpace(val)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ExtractLinks walks the rendered DOM for anchors, role=link nodes,
// data-href/url attributes, simple onclick navigation patterns, and the
// SPA navigation intents Load captured into page.SPANavIntents via
// installSPANavHooks and probeClickables (spec.md Section 4.7 step 6).
func (b *ChromedpBrowser) ExtractLinks(page Page) []Candidate {
	return extractLinks(page)
}

// ExtractStaticLinks runs the same DOM-signal extraction ExtractLinks uses,
// without requiring a live browser instance. It backs the orchestrator's
// one-shot seed scan of the base page, which fetches over plain HTTP.
func ExtractStaticLinks(page Page) []Candidate {
	return extractLinks(page)
}

func extractLinks(page Page) []Candidate {
	doc, err := goquery.NewDocumentFromReader(bytesReader(page.Body))
	if err != nil {
		return nil
	}
	var out []Candidate

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" {
			return
		}
		out = append(out, Candidate{URL: href, Text: strings.TrimSpace(s.Text()), Kind: LinkKindAnchor})
	})
	doc.Find(`[role="link"]`).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("data-href")
		if !ok {
			href, ok = s.Attr("href")
		}
		if !ok || href == "" {
			return
		}
		out = append(out, Candidate{URL: href, Text: strings.TrimSpace(s.Text()), Kind: LinkKindRole})
	})
	doc.Find("[data-href], [data-url]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("data-href")
		if !ok {
			href, ok = s.Attr("data-url")
		}
		if !ok || href == "" {
			return
		}
		out = append(out, Candidate{URL: href, Text: strings.TrimSpace(s.Text()), Kind: LinkKindDataAttr})
	})
	doc.Find("[onclick]").Each(func(_ int, s *goquery.Selection) {
		onclick, _ := s.Attr("onclick")
		if href := extractOnclickHref(onclick); href != "" {
			out = append(out, Candidate{URL: href, Text: strings.TrimSpace(s.Text()), Kind: LinkKindOnclick})
		}
	})
	for _, u := range page.SPANavIntents {
		if u == "" {
			continue
		}
		out = append(out, Candidate{URL: u, Kind: LinkKindSPANav})
	}
	return out
}

var onclickHrefRe = regexp.MustCompile(`(?:location(?:\.href)?\s*=\s*|(?:location\.(?:assign|replace)|window\.open)\()\s*['"]([^'"]+)['"]`)

func extractOnclickHref(onclick string) string {
	m := onclickHrefRe.FindStringSubmatch(onclick)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
