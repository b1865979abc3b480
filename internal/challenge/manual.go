package challenge

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"
)

// ManualResolver opens the configured HTML page (PageURL, served by the
// caller) in a chromedp-driven local browser, lets the operator click
// through the puzzle, and polls the
// page's #validate element until it carries a non-empty value. This is
// the Go analogue of the original's embedded-webview + Selenium flow in
// util/Geetest, driven here via chromedp instead of selenium bindings.
type ManualResolver struct {
	PageURL     string        // template page hosting the geetest widget
	PollEvery   time.Duration
	WaitTimeout time.Duration
	Headless    bool
}

// NewManualResolver builds a resolver that points at a local HTML page
// (served by the caller, e.g. a small embedded http.FileServer) capable of
// rendering the geetest widget for the given (gt, challenge) pair.
func NewManualResolver(pageURL string, headless bool) *ManualResolver {
	return &ManualResolver{
		PageURL:     pageURL,
		PollEvery:   300 * time.Millisecond,
		WaitTimeout: 30 * time.Second,
		Headless:    headless,
	}
}

// Solve implements Resolver. It never returns before the operator (or a
// timeout) produces an answer; per spec.md §4.4 this blocking time is not
// counted against the request scheduler, since it runs outside the FSM's
// own sleep accounting.
func (r *ManualResolver) Solve(ctx context.Context, gt, challenge string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", r.Headless))
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	waitCtx, cancelWait := context.WithTimeout(browserCtx, r.WaitTimeout)
	defer cancelWait()

	target := fmt.Sprintf("%s?gt=%s&challenge=%s", r.PageURL, url.QueryEscape(gt), url.QueryEscape(challenge))

	var validate string
	err := chromedp.Run(waitCtx,
		chromedp.Navigate(target),
		chromedp.Poll(
			`document.querySelector('#validate') && document.querySelector('#validate').value`,
			&validate,
			chromedp.WithPollingInterval(r.PollEvery),
		),
	)
	if err != nil {
		return "", fmt.Errorf("manual resolver: %w", err)
	}
	if validate == "" {
		return "", fmt.Errorf("manual resolver: operator closed the page without solving")
	}
	return validate, nil
}
