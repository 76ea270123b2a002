package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/nova/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage contexts. A context holds an API key, an optional base URL and
timeout, and extra settings:

  voice_model, voice_name, chat_model, image_model, transport (ws|sdk),
  queue_policy (drop|unbounded|block), queue_size, history_dir, image_dir,
  s3_bucket, s3_prefix, s3_region, s3_endpoint

Examples:
  nova config add-context dev --api-key KEY
  nova config use-context dev
  nova config set dev transport sdk
  nova config get-context dev`,
}

var addContextFlags struct {
	apiKey  string
	baseURL string
	timeout int
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Create or replace a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := &cli.Context{
			APIKey:  addContextFlags.apiKey,
			BaseURL: addContextFlags.baseURL,
			Timeout: addContextFlags.timeout,
		}
		if err := cfg.AddContext(args[0], ctx); err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			if err := cfg.UseContext(args[0]); err != nil {
				return err
			}
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "Context %q saved", args[0])
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "Context %q deleted", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "Switched to context %q", args[0])
		return nil
	},
}

var configCurrentContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Display the current context name",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No current context set.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.CurrentContext)
		return nil
	},
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"ls"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		names := cfg.ListContexts()
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No contexts configured.")
			fmt.Fprintln(cmd.OutOrStdout(), "Create one with: nova config add-context <name> --api-key KEY")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tAPI KEY\tBASE URL")
		for _, name := range names {
			ctx := cfg.Contexts[name]
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", current, name, cli.MaskAPIKey(ctx.APIKey), ctx.BaseURL)
		}
		return w.Flush()
	},
}

var configGetContextCmd = &cobra.Command{
	Use:   "get-context [name]",
	Short: "Show a context with its key masked",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		name := contextName
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			name = cfg.CurrentContext
		}
		ctx, err := cfg.GetContext(name)
		if err != nil {
			return err
		}
		masked := *ctx
		masked.APIKey = cli.MaskAPIKey(ctx.APIKey)
		return printResult(cmd, masked)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <context> <key> <value>",
	Short: "Set a context value",
	Long: `Set api_key, base_url, timeout or an extra setting of a context. An
empty value clears it.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, err := cfg.GetContext(args[0])
		if err != nil {
			return err
		}
		if err := ctx.Set(args[1], args[2]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "%s.%s updated", args[0], args[1])
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the config file location and contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		contexts := make([]cli.Context, 0, len(cfg.Contexts))
		for _, name := range cfg.ListContexts() {
			c := *cfg.Contexts[name]
			c.APIKey = cli.MaskAPIKey(c.APIKey)
			contexts = append(contexts, c)
		}
		return printResult(cmd, map[string]any{
			"path":            cfg.Path(),
			"current_context": cfg.CurrentContext,
			"contexts":        contexts,
		})
	},
}

func init() {
	f := configAddContextCmd.Flags()
	f.StringVar(&addContextFlags.apiKey, "api-key", "", "Gemini API key")
	f.StringVar(&addContextFlags.baseURL, "base-url", "", "API base URL")
	f.IntVar(&addContextFlags.timeout, "timeout", 0, "request timeout in seconds")

	configCmd.AddCommand(
		configAddContextCmd,
		configDeleteContextCmd,
		configUseContextCmd,
		configCurrentContextCmd,
		configListContextsCmd,
		configGetContextCmd,
		configSetCmd,
		configViewCmd,
	)
	rootCmd.AddCommand(configCmd)
}
