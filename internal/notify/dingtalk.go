package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DingTalkChannel posts a text message to a DingTalk custom robot webhook,
// grounded on the original's ding_push().
type DingTalkChannel struct {
	token string
	http  *http.Client
}

func NewDingTalkChannel(token string) *DingTalkChannel {
	return &DingTalkChannel{token: token, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *DingTalkChannel) Name() string { return "dingtalk" }

func (c *DingTalkChannel) Send(ctx context.Context, message string) error {
	payload := map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": message},
		"at":      map[string]bool{"isAtAll": false},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	target := "https://oapi.dingtalk.com/robot/send?access_token=" + c.token
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
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
		return fmt.Errorf("dingtalk returned status %d", resp.StatusCode)
	}
	return nil
}
