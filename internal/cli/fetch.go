package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rennerdo30/pacparser/internal/dialer"
	"github.com/rennerdo30/pacparser/internal/directive"
	"github.com/rennerdo30/pacparser/internal/logging"
	"github.com/rennerdo30/pacparser/internal/version"
)

func newFetchCommand() *cobra.Command {
	var opts scriptOptions
	var rawURL, output string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a URL through the proxies a PAC script selects",
		Long: `Fetch evaluates the PAC script for the URL and tries the returned
proxies in order until one connects. The response body is written to stdout
or to --output.`,
		Example: `  pacparser fetch -f proxy.pac -u https://www.example.com/ -o page.html`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, script, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			entries, err := script.FindProxy(rawURL)
			if err != nil {
				return err
			}
			logging.FromContext(cmd.Context()).Info("Proxies selected", "url", rawURL, "proxy", directive.Format(entries))

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}
			return fetch(cmd, entries, rawURL, timeout, out)
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVarP(&rawURL, "url", "u", "", "URL to fetch (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the body to this file")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall request timeout")
	_ = cmd.MarkFlagRequired("url") //nolint:errcheck // Flag registration only fails on invalid flag name
	return cmd
}

func fetch(cmd *cobra.Command, entries []directive.Entry, rawURL string, timeout time.Duration, out io.Writer) error {
	client := &http.Client{
		Transport: dialer.Transport(entries,
			dialer.WithTimeout(timeout),
			dialer.WithUserAgent(version.UserAgent()),
		),
		Timeout: timeout,
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", resp.Proto, resp.Status)
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("fetch %s: %s", rawURL, resp.Status)
	}
	return nil
}
