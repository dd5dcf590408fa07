// Package webfetch renders a web page with a headless browser and converts
// its readable content to markdown for ingestion as a Document. Other
// document formats (PDF, plain text uploads) are out of scope; this package
// only ever produces the raw_content for web URLs.
package webfetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"net/url"
)

// Page is a fetched and converted web page, ready to become a Document's
// raw content.
type Page struct {
	URL      string
	Title    string
	Markdown string
}

// Fetcher renders pages with a headless Chrome instance.
type Fetcher struct {
	Timeout time.Duration
}

// New constructs a Fetcher with the given render timeout, defaulting to 10s.
func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{Timeout: timeout}
}

// Fetch renders address, extracts its readable article content and converts
// it to markdown.
func (f *Fetcher) Fetch(ctx context.Context, address string) (Page, error) {
	rawHTML, err := f.render(ctx, address)
	if err != nil {
		return Page{}, fmt.Errorf("render %s: %w", address, err)
	}

	base, _ := url.Parse(address)
	articleHTML := rawHTML
	title := ""
	if art, rerr := readability.FromReader(strings.NewReader(rawHTML), base); rerr == nil && strings.TrimSpace(art.Content) != "" {
		articleHTML = art.Content
		title = strings.TrimSpace(art.Title)
	} else {
		title = extractTitle(rawHTML)
	}

	md, err := htmltomarkdown.ConvertString(articleHTML, converter.WithDomain(baseOrigin(address)))
	if err != nil {
		return Page{}, fmt.Errorf("html to markdown: %w", err)
	}
	if title != "" && !strings.HasPrefix(strings.TrimSpace(md), "# ") {
		md = "# " + title + "\n\n" + md
	}

	return Page{URL: address, Title: title, Markdown: strings.TrimSpace(md)}, nil
}

func (f *Fetcher) render(ctx context.Context, address string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", true))
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, f.Timeout)
	defer cancel()

	var rawHTML string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(address),
		chromedp.ActionFunc(func(ctx context.Context) error {
			headers := map[string]interface{}{
				"Accept-Language": "en-US,en;q=0.9",
			}
			return network.SetExtraHTTPHeaders(network.Headers(headers)).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &rawHTML),
	)
	return rawHTML, err
}

func baseOrigin(address string) string {
	u, err := url.Parse(address)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func extractTitle(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}
