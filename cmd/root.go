package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aictl/itaccess/internal/config"
	"github.com/aictl/itaccess/internal/provider"
)

var (
	cfgFile      string
	autoApprove  bool
	readOnly     bool
	modelFlag    string
	providerFlag string
	maxTurnsFlag int
	snapshotFlag string
	backendFlag  string
	logLevelFlag string
	metricsAddr  string
	noGate       bool
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	if err := newRootCmd(version, commit, date).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "itaccess",
		Short: "IT access assistant with enforced verification",
		Long: "itaccess is a help-desk agent that grants and revokes access to shared resources.\n" +
			"Every successful grant or revoke is followed by a verification read of the user's permissions.",
		// Running itaccess with no subcommand starts chat mode.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := rootCmd.PersistentFlags()
	f.StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/itaccess/config.yaml)")
	f.BoolVar(&autoApprove, "auto-approve", false, "run grants and revokes without confirmation")
	f.BoolVar(&readOnly, "read-only", false, "deny every grant and revoke")
	f.StringVarP(&modelFlag, "model", "m", "", "override model")
	f.StringVarP(&providerFlag, "provider", "p", "", "override provider")
	f.IntVar(&maxTurnsFlag, "max-turns", 0, "max agent loop iterations per message")
	f.StringVar(&snapshotFlag, "snapshot", "", "JSON or YAML file with the initial users, resources and permissions")
	f.StringVar(&backendFlag, "backend", "", "store backend: memory or sqlite")
	f.StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.BoolVar(&noGate, "no-gate", false, "disable verification after writes")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newToolCmd())
	rootCmd.AddCommand(newScenarioCmd())
	rootCmd.AddCommand(newStateCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))
	return rootCmd
}

// initConfig loads configuration and applies CLI flag overrides.
func initConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if autoApprove {
		cfg.Permissions.Mode = config.ModeAutoApprove
	}
	if readOnly {
		cfg.Permissions.Mode = config.ModeReadOnly
	}
	if maxTurnsFlag > 0 {
		cfg.MaxIterations = maxTurnsFlag
	}
	if snapshotFlag != "" {
		cfg.Store.Snapshot = snapshotFlag
	}
	if backendFlag != "" {
		cfg.Store.Backend = backendFlag
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if noGate {
		cfg.Gate.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// providerBaseURLs maps OpenAI-compatible provider names to their base URLs.
var providerBaseURLs = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"deepseek": "https://api.deepseek.com",
	"kimi":     "https://api.moonshot.cn/v1",
	"qwen":     "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"groq":     "https://api.groq.com/openai/v1",
}

// buildProvider creates a Provider instance based on configuration.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	name := cfg.Provider
	pc := cfg.GetProviderConfig(name)

	if pc.APIKey == "" {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY",
			name, name,
		)
	}

	// CLI flag > config file > provider default.
	model := cfg.Model
	if model == "" {
		model = pc.Model
	}

	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(pc.APIKey, pc.BaseURL, model), nil
	default:
		baseURL := pc.BaseURL
		if baseURL == "" {
			u, ok := providerBaseURLs[name]
			if !ok {
				return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
			}
			baseURL = u
		}
		return provider.NewOpenAIProvider(pc.APIKey, baseURL, model), nil
	}
}
