package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FtqqChannel posts to Server酱's ftqq webhook, grounded on the original's
// ftqq().
type FtqqChannel struct {
	token string
	http  *http.Client
}

func NewFtqqChannel(token string) *FtqqChannel {
	return &FtqqChannel{token: token, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *FtqqChannel) Name() string { return "ftqq" }

func (c *FtqqChannel) Send(ctx context.Context, message string) error {
	form := url.Values{
		"title": {"ticketbot new notification"},
		"desp":  {message},
		"noip":  {"1"},
	}
	target := fmt.Sprintf("https://sctapi.ftqq.com/%s.send", c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ftqq returned status %d", resp.StatusCode)
	}
	return nil
}
