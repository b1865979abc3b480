package challenge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AutomaticResolver posts (gt, challenge) to a configured third-party
// geetest-solving endpoint and returns the validate string it replies
// with. The core treats this as a black box — grounded on the original's
// util/Captcha.Auto, which hands off to an external click/slide solver and
// trusts its answer without inspecting how it was produced.
type AutomaticResolver struct {
	Endpoint string
	HTTP     *http.Client
}

// NewAutomaticResolver builds a resolver against a solver endpoint that
// accepts a form POST of {gt, challenge} and replies with JSON
// {"validate": "..."}.
func NewAutomaticResolver(endpoint string) *AutomaticResolver {
	return &AutomaticResolver{
		Endpoint: endpoint,
		HTTP:     &http.Client{Timeout: 15 * time.Second},
	}
}

type solverResponse struct {
	Validate string `json:"validate"`
	Error    string `json:"error"`
}

// Solve implements Resolver.
func (r *AutomaticResolver) Solve(ctx context.Context, gt, challenge string) (string, error) {
	form := url.Values{"gt": {gt}, "challenge": {challenge}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("automatic solver request: %w", err)
	}
	defer resp.Body.Close()

	var out solverResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode solver response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("automatic solver: %s", out.Error)
	}
	if out.Validate == "" {
		return "", fmt.Errorf("automatic solver returned an empty validate")
	}
	return out.Validate, nil
}
