package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUpstream indica que el proveedor de credenciales fallo. No se reintenta aqui.
var ErrUpstream = errors.New("storage provider request failed")

type Permission string

const (
	PermissionObjectReadOnly  Permission = "object-read-only"
	PermissionObjectReadWrite Permission = "object-read-write"

	DefaultTempCredentialsBaseURL = "https://api.cloudflare.com/client/v4"
	minTempCredentialsTTL         = 60 * time.Second
)

type TempCredentialsConfig struct {
	BaseURL           string
	AccountID         string
	APIToken          string
	ParentAccessKeyID string
	Timeout           time.Duration
}

type TempCredentialsRequest struct {
	Bucket     string
	Key        string
	Permission Permission
	TTL        time.Duration
}

// TempCredentialsClient pide al proveedor credenciales de corta vida limitadas a un objeto.
type TempCredentialsClient struct {
	baseURL           string
	accountID         string
	apiToken          string
	parentAccessKeyID string
	client            *http.Client
	logger            *zap.Logger
}

func NewTempCredentialsClient(cfg TempCredentialsConfig, logger *zap.Logger) (*TempCredentialsClient, error) {
	if strings.TrimSpace(cfg.AccountID) == "" || strings.TrimSpace(cfg.APIToken) == "" || strings.TrimSpace(cfg.ParentAccessKeyID) == "" {
		return nil, fmt.Errorf("%w: account id, api token and parent access key are required", ErrSigning)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultTempCredentialsBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TempCredentialsClient{
		baseURL:           strings.TrimRight(baseURL, "/"),
		accountID:         strings.TrimSpace(cfg.AccountID),
		apiToken:          strings.TrimSpace(cfg.APIToken),
		parentAccessKeyID: strings.TrimSpace(cfg.ParentAccessKeyID),
		client:            &http.Client{Timeout: timeout},
		logger:            logger,
	}, nil
}

// Mint es una sola llamada falible; el llamador decide si reintenta.
func (c *TempCredentialsClient) Mint(ctx context.Context, in TempCredentialsRequest) (Credentials, error) {
	if strings.TrimSpace(in.Bucket) == "" || strings.TrimSpace(in.Key) == "" {
		return Credentials{}, fmt.Errorf("%w: bucket and key are required", ErrSigning)
	}
	permission := in.Permission
	if permission == "" {
		permission = PermissionObjectReadWrite
	}
	if permission != PermissionObjectReadOnly && permission != PermissionObjectReadWrite {
		return Credentials{}, fmt.Errorf("%w: unknown permission %q", ErrSigning, permission)
	}
	ttl := in.TTL
	if ttl < minTempCredentialsTTL {
		ttl = minTempCredentialsTTL
	}

	reqBody := tempCredentialsRequestBody{
		Bucket:            in.Bucket,
		ParentAccessKeyID: c.parentAccessKeyID,
		Permission:        string(permission),
		TTLSeconds:        int64(ttl / time.Second),
		Objects:           []string{strings.TrimLeft(in.Key, "/")},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Credentials{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/accounts/" + url.PathEscape(c.accountID) + "/r2/temp-access-credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return Credentials{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}
	if resp.StatusCode >= 400 {
		c.logger.Warn("temp credentials request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(respBody), 512)),
		)
		return Credentials{}, fmt.Errorf("%w: status=%d", ErrUpstream, resp.StatusCode)
	}

	var out tempCredentialsResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Credentials{}, fmt.Errorf("%w: unmarshal response: %v", ErrUpstream, err)
	}
	if !out.Success {
		msg := "unknown error"
		if len(out.Errors) > 0 {
			msg = out.Errors[0].Message
		}
		return Credentials{}, fmt.Errorf("%w: %s", ErrUpstream, msg)
	}
	creds := Credentials{
		AccessKeyID:     out.Result.AccessKeyID,
		SecretAccessKey: out.Result.SecretAccessKey,
		SessionToken:    out.Result.SessionToken,
	}
	if !creds.valid() || creds.SessionToken == "" {
		return Credentials{}, fmt.Errorf("%w: incomplete credentials", ErrUpstream)
	}
	return creds, nil
}

type tempCredentialsRequestBody struct {
	Bucket            string   `json:"bucket"`
	ParentAccessKeyID string   `json:"parentAccessKeyId"`
	Permission        string   `json:"permission"`
	TTLSeconds        int64    `json:"ttlSeconds"`
	Objects           []string `json:"objects"`
}

type tempCredentialsResponse struct {
	Success bool `json:"success"`
	Result  struct {
		AccessKeyID     string `json:"accessKeyId"`
		SecretAccessKey string `json:"secretAccessKey"`
		SessionToken    string `json:"sessionToken"`
	} `json:"result"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
