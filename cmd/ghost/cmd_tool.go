package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"ghostbot/internal/system"
	"ghostbot/internal/tools"

	"github.com/spf13/cobra"
)

var toolTimeout time.Duration

var toolCmd = &cobra.Command{
	Use:   "tool",
	Short: "Run the bot's collaborators directly",
	Long: `Lists and runs the collaborators the response flows use (web search,
page extraction, document extraction, image synthesis) outside of a chat.`,
}

var toolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := bootTools(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()
		printTools(cmd, svc.Tools)
		return nil
	},
}

var toolRunCmd = &cobra.Command{
	Use:   "run [tool] [key=value...]",
	Short: "Run one tool",
	Long: `Runs a tool with key=value arguments and prints its output.

Examples:
  ghost tool run web_search query="cuaca jakarta" max_results=3
  ghost tool run web_fetch url=https://example.com
  ghost tool run extract_document path=laporan.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTool,
}

func init() {
	toolRunCmd.Flags().DurationVar(&toolTimeout, "timeout", 2*time.Minute, "Tool timeout")
	toolCmd.AddCommand(toolListCmd)
	toolCmd.AddCommand(toolRunCmd)
}

// bootTools builds the services without requiring model keys.
func bootTools(ctx context.Context) (*system.Services, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(cfg.LLM.APIKeys) == 0 {
		cfg.LLM.APIKeys = []string{"unused"}
	}
	return system.Boot(ctx, cfg, system.BootOptions{})
}

func runTool(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), toolTimeout)
	defer cancel()

	svc, err := bootTools(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	toolArgs, err := parseToolArgs(args[1:])
	if err != nil {
		return err
	}
	result, err := svc.Tools.Execute(ctx, args[0], toolArgs)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Result)
	logger.Sugar().Debugf("%s finished in %dms", result.ToolName, result.DurationMs)
	return nil
}

// parseToolArgs turns key=value pairs into tool arguments. Values stay
// strings; tools convert numbers themselves.
func parseToolArgs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

func printTools(cmd *cobra.Command, registry *tools.Registry) {
	all := registry.All()
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tARGS\tDESCRIPTION")
	for _, t := range all {
		var params []string
		for name := range t.Schema.Properties {
			if contains(t.Schema.Required, name) {
				name += "*"
			}
			params = append(params, name)
		}
		sort.Strings(params)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name, t.Category, strings.Join(params, ","), t.Description)
	}
	_ = w.Flush()
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
