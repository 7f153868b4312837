// Package kratos implements the production auth gateway on Ory Kratos
// self-service native flows.
package kratos

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	kratosclient "github.com/ory/kratos-client-go"
)

// Client wraps the generated Kratos API client for the public endpoint.
type Client struct {
	api       *kratosclient.APIClient
	publicURL string
	logger    *slog.Logger
}

// NewClient validates the public URL and builds the API client.
func NewClient(publicURL string, logger *slog.Logger) (*Client, error) {
	if !isValidURL(publicURL) {
		return nil, fmt.Errorf("invalid Kratos public URL: %s", publicURL)
	}

	cfg := kratosclient.NewConfiguration()
	cfg.Servers = []kratosclient.ServerConfiguration{
		{URL: publicURL},
	}
	cfg.HTTPClient = &http.Client{
		Timeout: 30 * time.Second,
	}
	if cfg.DefaultHeader == nil {
		cfg.DefaultHeader = make(map[string]string)
	}
	cfg.DefaultHeader["Accept"] = "application/json"

	logger.Info("Kratos client initialized", slog.String("public_url", publicURL))

	return &Client{
		api:       kratosclient.NewAPIClient(cfg),
		publicURL: publicURL,
		logger:    logger,
	}, nil
}

// Frontend returns the self-service flow API.
func (c *Client) Frontend() kratosclient.FrontendAPI {
	return c.api.FrontendAPI
}

// HealthCheck verifies the Kratos public endpoint is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, resp, err := c.api.MetadataAPI.GetVersion(ctx).Execute()
	if err != nil {
		return fmt.Errorf("failed to connect to Kratos public API: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Kratos public API returned status %d", resp.StatusCode)
	}
	return nil
}

// PublicURL returns the configured endpoint.
func (c *Client) PublicURL() string {
	return c.publicURL
}

func isValidURL(urlStr string) bool {
	if urlStr == "" {
		return false
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	return parsed.Scheme != "" && parsed.Host != ""
}
