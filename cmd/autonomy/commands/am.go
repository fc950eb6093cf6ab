package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/autonomy/am"
	"github.com/teranos/autonomy/auth"
	"github.com/teranos/autonomy/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Manage autonomy configuration",
	Long: sym.AM + ` am - Manage autonomy configuration ("I am")

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/autonomy/am.toml)
3. User config (~/.autonomy/am.toml)
4. Project config (./am.toml, searched up the directory tree)
5. Environment variables (AUTONOMY_* prefix)

Examples:
  autonomy am show                  # Show current configuration
  autonomy am show --format json    # Show configuration in JSON format
  autonomy am show --sources        # Show where each setting comes from
  autonomy am get pulse.max_running # Get specific config value
  autonomy am validate              # Validate current configuration
  autonomy am hash-key              # Hash an API key for auth.api_keys`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective autonomy configuration from all sources",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, pulse.max_running)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amHashKeyCmd = &cobra.Command{
	Use:   "hash-key [key]",
	Short: "Print the SHA-256 digest of an API key",
	Long: `Print the key_sha256 value to store in [[auth.api_keys]].

The key is read from the argument or, when omitted, from the first line of stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAmHashKey,
}

var (
	configFormat string
	showSources  bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amShowCmd.Flags().BoolVar(&showSources, "sources", false, "List each setting with the source it was loaded from")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amHashKeyCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	if showSources {
		return printSources()
	}

	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		fmt.Printf("# autonomy configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Printf("# autonomy configuration\n%s", string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func printSources() error {
	intro := am.GetConfigIntrospection()
	settings := intro.Settings
	sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })

	for _, setting := range settings {
		valueStr := fmt.Sprintf("%v", setting.Value)
		if len(valueStr) > 50 {
			valueStr = valueStr[:47] + "..."
		}
		origin := string(setting.Source)
		if setting.SourcePath != "" {
			origin += " " + setting.SourcePath
		}
		fmt.Printf("%-36s %-40s [%s]\n", setting.Key, valueStr, origin)
	}
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}
	fmt.Println(v.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if _, err := auth.FromConfig(cfg.Auth); err != nil {
		return fmt.Errorf("auth configuration invalid: %w", err)
	}

	fmt.Println("✓ Configuration is valid")
	return nil
}

func runAmHashKey(cmd *cobra.Command, args []string) error {
	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read key from stdin: %w", err)
		}
		key = strings.TrimSpace(line)
	}
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	fmt.Println(auth.HashKey(key))
	return nil
}
