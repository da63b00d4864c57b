// Package apiclient talks to an OpenAI-compatible embedding, rerank and chat
// service (SiliconFlow by default).
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mwiater/loremaster/internal/appconfig"
	"github.com/mwiater/loremaster/internal/logging"
)

const (
	outbound = "LOREMASTER->API"
	inbound  = "API->LOREMASTER"
)

// Client is a stateless wrapper around the remote endpoints; it is safe for
// concurrent use.
type Client struct {
	baseURL      string
	apiKey       string
	testModel    string
	http         *http.Client
	streamHTTP   *http.Client
	embedTimeout time.Duration
	chatTimeout  time.Duration
}

// New builds a Client from cfg. It fails with *appconfig.ConfigurationError
// when no API key or base URL is available.
func New(cfg *appconfig.Config) (*Client, error) {
	key := cfg.ResolveAPIKey()
	if key == "" {
		env := cfg.API.APIKeyEnv
		if env == "" {
			env = appconfig.DefaultAPIKeyEnv
		}
		return nil, &appconfig.ConfigurationError{Field: "api.apiKey", Reason: fmt.Sprintf("no API key configured and %s is empty", env)}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	if baseURL == "" {
		return nil, &appconfig.ConfigurationError{Field: "api.baseURL", Reason: "must not be empty"}
	}
	testModel := cfg.API.TestModel
	if strings.TrimSpace(testModel) == "" {
		testModel = appconfig.DefaultTestModel
	}

	dialer := &net.Dialer{Timeout: cfg.StreamConnectTimeout()}
	return &Client{
		baseURL:   baseURL,
		apiKey:    key,
		testModel: testModel,
		http: &http.Client{
			Transport: &http.Transport{ForceAttemptHTTP2: false, Proxy: http.ProxyFromEnvironment},
		},
		streamHTTP: &http.Client{
			Transport: &http.Transport{
				ForceAttemptHTTP2:     false,
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   cfg.StreamConnectTimeout(),
				ResponseHeaderTimeout: cfg.StreamReadTimeout(),
			},
		},
		embedTimeout: cfg.EmbeddingTimeout(),
		chatTimeout:  cfg.ChatTimeout(),
	}, nil
}

func requireModel(op, model string) error {
	if strings.TrimSpace(model) == "" {
		return &appconfig.ConfigurationError{Field: op + ".model", Reason: "model name must not be empty"}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// postJSON performs one request/response exchange: transport and status
// failures become *TransportError, body shape failures *ProtocolError.
func (c *Client) postJSON(ctx context.Context, op, path, model string, timeout time.Duration, payload any, schema *gojsonschema.Schema, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	logging.LogRequest(outbound, path, model, body)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.newRequest(callCtx, path, body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	logging.LogRequest(inbound, path, model, raw)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := validateBody(op, schema, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProtocolError{Op: op, Reason: "decode response", Err: err}
	}
	return nil
}
