package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rennerdo30/pacparser/internal/api"
	"github.com/rennerdo30/pacparser/internal/version"
)

// APIClient is a client for the pacparser REST API.
type APIClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
	Out     io.Writer
}

// NewAPIClient creates a new API client.
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Out:     os.Stdout,
	}
}

// NewCtlCommand creates the commands that query a running server.
func NewCtlCommand() *cobra.Command {
	var apiURL string
	var apiToken string
	var asJSON bool

	root := &cobra.Command{
		Use:   "ctl",
		Short: "Query a running pacparser server",
	}

	root.PersistentFlags().StringVar(&apiURL, "api", "http://127.0.0.1:8089", "API server URL")
	root.PersistentFlags().StringVar(&apiToken, "token", "", "API authentication token")
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "Print entries as JSON")

	newClient := func(cmd *cobra.Command) *APIClient {
		client := NewAPIClient(apiURL, apiToken)
		client.Out = cmd.OutOrStdout()
		return client
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(cmd).CheckHealth(cmd.Context())
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show server version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(cmd).ShowVersion(cmd.Context())
		},
	}

	var rawURL, host string
	proxyCmd := &cobra.Command{
		Use:   "proxy",
		Short: "Look up the proxies for a URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(cmd)
			resp, err := client.FindProxy(cmd.Context(), rawURL, host)
			if err != nil {
				return err
			}
			return printEntries(client.Out, resp.Entries, asJSON)
		},
	}
	proxyCmd.Flags().StringVarP(&rawURL, "url", "u", "", "URL to look up (required)")
	proxyCmd.Flags().StringVar(&host, "host", "", "Host passed to FindProxyForURL")
	_ = proxyCmd.MarkFlagRequired("url") //nolint:errcheck // Flag registration only fails on invalid flag name

	decodeCmd := &cobra.Command{
		Use:   "decode <proxy-spec>",
		Short: "Decode a proxy specification on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(cmd)
			resp, err := client.Decode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printEntries(client.Out, resp.Entries, asJSON)
		},
	}

	root.AddCommand(healthCmd, versionCmd, proxyCmd, decodeCmd)
	return root
}

func (c *APIClient) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}

	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	// The body must be consumed before cancel runs.
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

func (c *APIClient) decodeJSON(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // Best effort read for error message
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("API error: %s - %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("API error: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *APIClient) getJSON(ctx context.Context, path string, v interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return c.decodeJSON(resp, v)
}

// CheckHealth checks server health.
func (c *APIClient) CheckHealth(ctx context.Context) error {
	var health map[string]interface{}
	if err := c.getJSON(ctx, "/api/v1/health", &health); err != nil {
		return err
	}

	status := health["status"]
	if status == "healthy" {
		fmt.Fprintln(c.Out, "Server is healthy")
		return nil
	}

	fmt.Fprintf(c.Out, "Server health: %v\n", status)
	return nil
}

// ShowVersion prints the server build information.
func (c *APIClient) ShowVersion(ctx context.Context) error {
	var info version.Info
	if err := c.getJSON(ctx, "/api/v1/version", &info); err != nil {
		return err
	}

	fmt.Fprintf(c.Out, "Version: %s\n", info.Version)
	fmt.Fprintf(c.Out, "Commit: %s\n", info.GitCommit)
	fmt.Fprintf(c.Out, "Built: %s\n", info.BuildTime)
	fmt.Fprintf(c.Out, "Engine: goja %s\n", info.Engine)
	fmt.Fprintf(c.Out, "Go: %s %s\n", info.GoVersion, info.Platform)
	return nil
}

// FindProxy asks the server which proxies its script selects for rawURL.
func (c *APIClient) FindProxy(ctx context.Context, rawURL, host string) (*api.ProxyResponse, error) {
	query := url.Values{"url": {rawURL}}
	if host != "" {
		query.Set("host", host)
	}

	var resp api.ProxyResponse
	if err := c.getJSON(ctx, "/api/v1/proxy?"+query.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Decode asks the server to decode a proxy specification.
func (c *APIClient) Decode(ctx context.Context, spec string) (*api.ProxyResponse, error) {
	httpResp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/decode", strings.NewReader(spec))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	var resp api.ProxyResponse
	if err := c.decodeJSON(httpResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
