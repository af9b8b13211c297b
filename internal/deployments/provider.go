package deployments

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/angelmondragon/storefront-provisioner/pkg/config"
)

// Release is one request to apply a storefront build with its environment.
type Release struct {
	Project string            `json:"project"`
	Env     map[string]string `json:"env"`
	Domains []string          `json:"domains"`
}

// Outcome is what the provider reports for a successful release.
type Outcome struct {
	DeploymentID string `json:"id"`
	URL          string `json:"url"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// Provider applies releases on the hosting platform.
type Provider interface {
	Name() string
	Deploy(ctx context.Context, release Release) (*Outcome, error)
}

// NewProvider picks the provider named by the deploy config.
func NewProvider(cfg config.DeployConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case config.DeployProviderNoop, "":
		return NoopProvider{}, nil
	case config.DeployProviderHTTP:
		return NewHTTPProvider(cfg.BaseURL, cfg.APIToken, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unsupported deploy provider %q", cfg.Provider)
	}
}

// NoopProvider accepts every release. It backs local development.
type NoopProvider struct{}

func (NoopProvider) Name() string { return config.DeployProviderNoop }

func (NoopProvider) Deploy(_ context.Context, release Release) (*Outcome, error) {
	out := &Outcome{DeploymentID: "noop-" + release.Project, Status: "ready"}
	if len(release.Domains) > 0 {
		out.URL = "https://" + release.Domains[0]
	}
	return out, nil
}

// HTTPProvider talks to a hosting API that accepts
// POST /v1/deployments {project, env, domains}.
type HTTPProvider struct {
	client *resty.Client
}

// NewHTTPProvider builds a provider with a bearer token and a request
// timeout. Transport errors and 5xx answers are retried once.
func NewHTTPProvider(baseURL, token string, timeout time.Duration) (*HTTPProvider, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("deploy provider base url required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(250*time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode() >= http.StatusInternalServerError)
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTPProvider{client: client}, nil
}

func (p *HTTPProvider) Name() string { return config.DeployProviderHTTP }

func (p *HTTPProvider) Deploy(ctx context.Context, release Release) (*Outcome, error) {
	var out Outcome
	var failure struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(release).
		SetResult(&out).
		SetError(&failure).
		Post("/v1/deployments")
	if err != nil {
		return nil, fmt.Errorf("call deploy provider: %w", err)
	}
	if resp.IsError() {
		msg := failure.Error
		if msg == "" {
			msg = failure.Message
		}
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, fmt.Errorf("deploy provider returned %d: %s", resp.StatusCode(), msg)
	}
	switch strings.ToLower(out.Status) {
	case "failed", "error", "canceled", "cancelled":
		if out.Error == "" {
			out.Error = "release " + out.Status
		}
		return nil, fmt.Errorf("deploy provider reported %s: %s", out.Status, out.Error)
	}
	if out.DeploymentID == "" {
		return nil, fmt.Errorf("deploy provider response missing deployment id")
	}
	return &out, nil
}
