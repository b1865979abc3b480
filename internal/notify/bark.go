package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// BarkChannel posts to a Bark push gateway
// (https://github.com/Finb/Bark), grounded on the original's bark().
type BarkChannel struct {
	token string
	http  *http.Client
}

func NewBarkChannel(token string) *BarkChannel {
	return &BarkChannel{token: token, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *BarkChannel) Name() string { return "bark" }

func (c *BarkChannel) Send(ctx context.Context, message string) error {
	target := fmt.Sprintf("https://api.day.app/%s/%s", c.token, url.PathEscape(message))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bark returned status %d", resp.StatusCode)
	}
	return nil
}
