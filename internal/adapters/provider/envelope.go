package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kevin07696/payment-gateway/internal/adapters/ports"
)

// maxResponseBytes caps how much of a provider response is read
const maxResponseBytes = 1 << 20

// Config is the endpoint configuration shared by the envelope providers
type Config struct {
	BaseURL string
}

// DecodeError is returned by Send when the provider answered but its
// envelope could not be opened
type DecodeError struct {
	Err        error
	Provider   string
	Raw        []byte
	StatusCode int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response (HTTP %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// envelope is the wire shape in both directions: {"body": "<hex>"}
type envelope struct {
	Body string `json:"body"`
}

// envelopeClient implements Encrypt and Send for providers that speak the
// hex AES-CBC envelope over HTTPS.
type envelopeClient struct {
	name       string
	config     Config
	httpClient ports.HTTPClient
	logger     ports.Logger
}

func (c *envelopeClient) Name() string {
	return c.name
}

func (c *envelopeClient) Encrypt(body []byte, creds Credentials) ([]byte, error) {
	encoded, err := EncryptHex(body, creds.AESKey, creds.IV)
	if err != nil {
		return nil, fmt.Errorf("encrypt %s payload: %w", c.name, err)
	}
	return json.Marshal(envelope{Body: encoded})
}

func (c *envelopeClient) Send(ctx context.Context, req *Request, payload []byte, creds Credentials) (*Response, error) {
	url := strings.TrimRight(c.config.BaseURL, "/") + req.Path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", c.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", creds.APIKey)

	c.logger.Debug("Sending request to provider",
		ports.String("provider", c.name),
		ports.String("reference_id", req.ReferenceID),
		ports.String("url", url),
		ports.Masked("api_key", creds.APIKey),
		ports.Int("payload_bytes", len(payload)),
	)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.name, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", c.name, err)
	}

	body, err := c.open(raw, creds)
	if err != nil {
		return nil, &DecodeError{Err: err, Provider: c.name, Raw: raw, StatusCode: httpResp.StatusCode}
	}

	c.logger.Debug("Provider responded",
		ports.String("provider", c.name),
		ports.String("reference_id", req.ReferenceID),
		ports.Int("status_code", httpResp.StatusCode),
	)
	return &Response{StatusCode: httpResp.StatusCode, Body: body}, nil
}

// open decrypts a response that arrives as a hex envelope. Plain JSON and
// empty bodies are returned as-is.
func (c *envelopeClient) open(raw []byte, creds Credentials) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Body == "" {
		return raw, nil
	}

	body, err := DecryptHex(env.Body, creds.AESKey, creds.IV)
	if err != nil {
		return nil, fmt.Errorf("decrypt response: %w", err)
	}
	return body, nil
}
