package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PushPlusChannel posts to pushplus.plus, grounded on
// original_source/util/push/push.py's pushplus().
type PushPlusChannel struct {
	token string
	http  *http.Client
}

func NewPushPlusChannel(token string) *PushPlusChannel {
	return &PushPlusChannel{token: token, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *PushPlusChannel) Name() string { return "pushplus" }

func (c *PushPlusChannel) Send(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]string{
		"token":   c.token,
		"title":   message,
		"content": message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://www.pushplus.plus/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("pushplus returned status %d", resp.StatusCode)
	}
	return nil
}
