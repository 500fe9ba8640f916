// Package cli provides the pacparser command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rennerdo30/pacparser/internal/config"
	"github.com/rennerdo30/pacparser/internal/directive"
	"github.com/rennerdo30/pacparser/internal/logging"
	"github.com/rennerdo30/pacparser/internal/pac"
	"github.com/rennerdo30/pacparser/internal/resolver"
	"github.com/rennerdo30/pacparser/internal/version"
)

// maxScriptSize bounds PAC scripts fetched over HTTP.
const maxScriptSize = 4 << 20

// NewRootCommand creates the pacparser command tree.
func NewRootCommand() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "pacparser",
		Short: "Evaluate Proxy Auto-Configuration scripts",
		Long: `pacparser evaluates PAC scripts the way browsers do and reports the
proxies FindProxyForURL selects for a URL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := logging.DefaultConfig()
			cfg.Level = logLevel
			return logging.Setup(cfg)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newFindCommand(),
		newDecodeCommand(),
		newFetchCommand(),
		newServeCommand(),
		newValidateCommand(),
		newVersionCommand(),
		newHashTokenCommand(),
		NewCtlCommand(),
	)
	return root
}

// scriptOptions are the flags shared by commands that evaluate a script.
type scriptOptions struct {
	file  string
	myIP  string
	dns   []string
	hosts []string
}

func (o *scriptOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.file, "file", "f", "", "PAC file path or http(s) URL (required)")
	cmd.Flags().StringVar(&o.myIP, "my-ip", "", "Address returned by myIpAddress()")
	cmd.Flags().StringSliceVar(&o.dns, "dns", nil, "DNS servers to query instead of the system resolver")
	cmd.Flags().StringSliceVar(&o.hosts, "resolve", nil, "Static host entries as name=address")
	_ = cmd.MarkFlagRequired("file") //nolint:errcheck // Flag registration only fails on invalid flag name
}

func (o *scriptOptions) resolver() (resolver.Resolver, error) {
	rc := config.ResolverConfig{Mode: config.ResolverSystem}
	if len(o.dns) > 0 {
		rc.Mode = config.ResolverUpstream
		rc.Servers = o.dns
		rc.Timeout = config.Duration(5 * time.Second)
	}
	if len(o.hosts) > 0 {
		rc.Hosts = make(map[string][]string, len(o.hosts))
		for _, entry := range o.hosts {
			name, addr, ok := strings.Cut(entry, "=")
			if !ok || name == "" || addr == "" {
				return nil, fmt.Errorf("invalid --resolve entry %q, want name=address", entry)
			}
			rc.Hosts[name] = append(rc.Hosts[name], addr)
		}
	}
	return rc.Build()
}

// open creates an engine and loads the script. The caller closes the engine.
func (o *scriptOptions) open(ctx context.Context) (*pac.Engine, *pac.Script, error) {
	res, err := o.resolver()
	if err != nil {
		return nil, nil, err
	}
	source, err := readScript(ctx, o.file)
	if err != nil {
		return nil, nil, err
	}

	engine, err := pac.New(pac.Config{
		Resolver: res,
		MyIP:     o.myIP,
		Logger:   logging.WithComponent("pac"),
	})
	if err != nil {
		return nil, nil, err
	}
	script, err := engine.Load(string(source))
	if err != nil {
		engine.Close()
		return nil, nil, err
	}
	return engine, script, nil
}

// readScript reads a PAC script from a file or an http(s) URL.
func readScript(ctx context.Context, location string) ([]byte, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("failed to read PAC file: %w", err)
		}
		return data, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download PAC file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download PAC file: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptSize+1))
	if err != nil {
		return nil, fmt.Errorf("download PAC file: %w", err)
	}
	if len(data) > maxScriptSize {
		return nil, fmt.Errorf("download PAC file: larger than %d bytes", maxScriptSize)
	}
	return data, nil
}

func newFindCommand() *cobra.Command {
	var opts scriptOptions
	var rawURL, host string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Find the proxies a PAC script selects for a URL",
		Example: `  pacparser find -f proxy.pac -u http://www.example.com/
  pacparser find -f http://wpad/wpad.dat -u https://intranet.test/ --my-ip 10.0.0.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, script, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			if host == "" {
				if host, err = pac.HostOf(rawURL); err != nil {
					return err
				}
			}
			entries, err := script.FindProxyForHost(rawURL, host)
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), entries, asJSON)
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVarP(&rawURL, "url", "u", "", "URL to look up (required)")
	cmd.Flags().StringVar(&host, "host", "", "Host passed to FindProxyForURL (default: taken from the URL)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	_ = cmd.MarkFlagRequired("url") //nolint:errcheck // Flag registration only fails on invalid flag name
	return cmd
}

func newDecodeCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "decode <proxy-spec>",
		Short:   "Decode a FindProxyForURL result string",
		Example: `  pacparser decode "PROXY 10.0.0.1:3128; SOCKS5 10.0.0.2:1080; DIRECT"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := directive.Decode(args[0])
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), entries, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func newValidateCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file and its PAC script",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configFile)
			if err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}

			engine, err := pac.New(pac.Config{Logger: logging.WithComponent("pac")})
			if err != nil {
				return err
			}
			defer engine.Close()
			if _, err := engine.LoadFile(cfg.PAC.File); err != nil {
				return fmt.Errorf("PAC file invalid: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "pacparser.yaml", "config file path")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get())
		},
	}
}
