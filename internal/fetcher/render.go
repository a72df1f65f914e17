package fetcher

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/ObiAU/newssearch/internal/models"
)

// Renderer loads a page in a real browser so that script-built content is
// present in the returned HTML.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// ChromeRenderer drives a headless Chrome through chromedp. Each call starts
// its own browser process and tears it down afterwards.
type ChromeRenderer struct {
	timeout time.Duration
	settle  time.Duration
	opts    []chromedp.ExecAllocatorOption
}

func NewChromeRenderer(timeout time.Duration) *ChromeRenderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	return &ChromeRenderer{
		timeout: timeout,
		settle:  1500 * time.Millisecond,
		opts:    opts,
	}
}

func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, r.opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		browserCtx, cancel = context.WithTimeout(browserCtx, r.timeout)
		defer cancel()
	}

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", models.NewError(models.KindCancelled, "render", url, ctx.Err())
		}
		return "", models.NewError(models.KindNetworkTransient, "render", url, err)
	}
	return html, nil
}
