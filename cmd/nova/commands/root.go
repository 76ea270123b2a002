package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/nova/pkg/cli"
)

var (
	// Global flags
	configPath   string
	contextName  string
	outputFormat string
	outputQuery  string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "nova",
	Short: "Nova, a Gemini voice and chat assistant",
	Long: `nova - talk to Gemini by voice or text from the terminal.

Configuration is stored in ~/.giztoy/nova/config.yaml as kubectl-style
contexts. The API_KEY (or GEMINI_API_KEY) environment variable overrides the
key of the selected context.

Examples:
  # Create a context and make it current
  nova config add-context dev --api-key YOUR_KEY
  nova config use-context dev

  # Start a voice conversation (Ctrl-C to stop)
  nova voice

  # Ask with search grounding, continuing a saved session
  nova chat --search --session ID "What happened in Lisbon today?"

  # Generate an image
  nova image --aspect 16:9 "a lighthouse at dusk"`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ~/.giztoy/nova/config.yaml, or $NOVA_CONFIG)")
	pf.StringVarP(&contextName, "context", "c", "", "context to use (default: current context)")
	pf.StringVarP(&outputFormat, "output", "o", "yaml", "output format: yaml, json, raw")
	pf.StringVarP(&outputQuery, "query", "q", "", "jq expression applied to structured output")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig loads the config named by --config, $NOVA_CONFIG or the
// default location.
func loadConfig() (*cli.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("NOVA_CONFIG")
	}
	return cli.LoadConfigWithPath(cli.AppName, path)
}

// loadContext resolves the --context flag against the config.
func loadContext() (*cli.Config, *cli.Context, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	ctx, err := cfg.ResolveContext(contextName)
	if err != nil {
		return nil, nil, err
	}
	return cfg, ctx, nil
}

// printResult writes v to the command output in the --output format.
func printResult(cmd *cobra.Command, v any) error {
	format, err := cli.ParseOutputFormat(outputFormat)
	if err != nil {
		return err
	}
	return cli.Output(v, cli.OutputOptions{
		Format: format,
		Query:  outputQuery,
		Writer: cmd.OutOrStdout(),
	})
}
