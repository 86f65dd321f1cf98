package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/jgoulah/meterwatch/pkg/models"
)

// BrowserFetch renders the meter page in headless Chrome with the given user
// agent and parses the resulting HTML
func BrowserFetch(ctx context.Context, url, userAgent string) (*models.Reading, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(390, 844),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, 30*time.Second)
	defer cancel()

	var html string
	if err := chromedp.Run(browserCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("rendering meter page: %w", err)
	}

	if strings.Contains(html, blockedMarker) {
		return nil, &BlockedError{URL: url}
	}

	return Parse(html, time.Now()), nil
}
