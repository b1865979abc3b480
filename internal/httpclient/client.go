package httpclient

import (
	"context"
	"crypto/tls"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// host is the vendor host every request is pinned to for headers and for
// locating the CSRF cookie.
const host = "show.bilibili.com"

// userAgentPool is chosen once per process, mirroring the original's
// fake_useragent(os="android", platforms="mobile") pool — a small, fixed
// set of mobile UAs stands in for the pulled-at-runtime pool since the
// engine only needs "a" stable mobile UA, not a live database of them.
var userAgentPool = []string{
	"Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 13; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
}

// DebugHook is called with the direction ("request"/"response"), method,
// URL, and raw body for every call when debug mode is enabled — the Go
// analogue of the original's RequestHook/ResponseHook event hooks.
type DebugHook func(direction, method, url string, body []byte)

// Config configures a Client.
type Config struct {
	Timeout     time.Duration
	ProxyURL    string
	BanCooldown time.Duration // pause on HTTP 412, default 30s
	Debug       DebugHook
	Header      map[string]string // extra/overriding headers
	Cookie      map[string]string // seed cookies

	// RequestsPerSecond caps outbound request rate as a floor under the
	// FSM's own adaptive sleeping — a safety net against a scheduler bug
	// ever hammering the vendor faster than configured. 0 disables the cap.
	RequestsPerSecond float64
}

// Client is a cookie-aware HTTP client for the vendor's JSON envelope API.
// It is not safe for concurrent Do calls against the same order token —
// the acquisition engine is single-threaded by design (spec.md §5).
type Client struct {
	http        *http.Client
	jar         *cookiejar.Jar
	header      http.Header
	banCooldown time.Duration
	debug       DebugHook
	limiter     *rate.Limiter
}

// New builds a Client with a persistent cookie jar and the vendor's default
// headers, seeding any cookies supplied in cfg.Cookie.
func New(cfg Config) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	banCooldown := cfg.BanCooldown
	if banCooldown <= 0 {
		banCooldown = 30 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // vendor endpoint pins cert issues observed in the wild
	}

	hc := &http.Client{
		Jar:       jar,
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return nil // follow redirects, mirrors original's redirect=True
		},
	}

	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	header := http.Header{
		"Accept":          {"*/*"},
		"Accept-Language": {"zh-CN,zh;q=0.9"},
		"Connection":      {"keep-alive"},
		"Referer":         {"https://" + host},
		"Origin":          {"https://" + host + "/"},
		"Sec-Fetch-Dest":  {"empty"},
		"Sec-Fetch-Mode":  {"cors"},
		"Sec-Fetch-Site":  {"same-origin"},
		"User-Agent":      {userAgentPool[rand.Intn(len(userAgentPool))]},
	}
	for k, v := range cfg.Header {
		header.Set(k, v)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	c := &Client{
		http:        hc,
		jar:         jar,
		header:      header,
		banCooldown: banCooldown,
		debug:       cfg.Debug,
		limiter:     limiter,
	}

	if len(cfg.Cookie) > 0 {
		c.seedCookies(cfg.Cookie)
	}

	return c, nil
}

func (c *Client) seedCookies(cookies map[string]string) {
	u := &url.URL{Scheme: "https", Host: host}
	var list []*http.Cookie
	for k, v := range cookies {
		list = append(list, &http.Cookie{Name: k, Value: v})
	}
	c.jar.SetCookies(u, list)
}

// Get performs a GET request and returns the decoded envelope.
func (c *Client) Get(ctx context.Context, rawURL string) Envelope {
	return c.do(ctx, http.MethodGet, rawURL, nil)
}

// PostForm performs an application/x-www-form-urlencoded POST and returns
// the decoded envelope.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) Envelope {
	return c.do(ctx, http.MethodPost, rawURL, form)
}

func (c *Client) do(ctx context.Context, method, rawURL string, form url.Values) Envelope {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return transportEnvelope(TransportErrorCode, err.Error())
		}
	}

	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return transportEnvelope(TransportErrorCode, err.Error())
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if c.debug != nil {
		c.debug("request", method, rawURL, []byte(form.Encode()))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportEnvelope(TransportErrorCode, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportEnvelope(TransportErrorCode, err.Error())
	}

	if c.debug != nil {
		c.debug("response", method, rawURL, respBody)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		env, err := ParseEnvelope(respBody)
		if err != nil {
			return transportEnvelope(TransportErrorCode, err.Error())
		}
		return env

	case http.StatusTooManyRequests:
		// Overloaded but harmless; the FSM retries without widening back-off.
		return transportEnvelope(429, "server overloaded (429)")

	case http.StatusPreconditionFailed: // 412
		logrus.Error("source IP banned by vendor (412); pausing before resuming")
		time.Sleep(c.banCooldown)
		return transportEnvelope(TransportErrorCode, "ip banned (412)")

	default:
		logrus.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
		return transportEnvelope(TransportErrorCode, "unexpected status "+resp.Status)
	}
}

// CookieValue returns the named cookie's current value from the vendor
// host's jar, or "" if unset.
func (c *Client) CookieValue(name string) string {
	u := &url.URL{Scheme: "https", Host: host}
	for _, ck := range c.jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// CSRFToken returns the current bili_jct cookie value, the CSRF token every
// risk-endpoint call must carry.
func (c *Client) CSRFToken() string {
	return c.CookieValue("bili_jct")
}

// InjectGaiaVToken sets the x-bili-gaia-vtoken cookie after a successful
// risk challenge, as spec.md §4.1 requires.
func (c *Client) InjectGaiaVToken(value string) {
	u := &url.URL{Scheme: "https", Host: host}
	c.jar.SetCookies(u, []*http.Cookie{{Name: "x-bili-gaia-vtoken", Value: value}})
}
