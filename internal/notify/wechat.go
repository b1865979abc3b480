package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WeChatChannel posts to a WeChat Work ("企业微信") group-robot webhook,
// grounded on the original's wx_push().
type WeChatChannel struct {
	token string
	http  *http.Client
}

func NewWeChatChannel(token string) *WeChatChannel {
	return &WeChatChannel{token: token, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *WeChatChannel) Name() string { return "wechat" }

func (c *WeChatChannel) Send(ctx context.Context, message string) error {
	payload := map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": message},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	target := "https://qyapi.weixin.qq.com/cgi-bin/webhook/send?key=" + c.token
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
		return fmt.Errorf("wechat returned status %d", resp.StatusCode)
	}
	return nil
}
