package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"amm_go/internal/infra"
)

// defaultConfigPath is read when --config is not given and the file exists.
const defaultConfigPath = "configs/config.yaml"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "amm",
	Short: "Constant-product AMM engine",
	Long: `amm runs a constant-product automated market maker.

It provides commands for:
- Serving the engine over HTTP and websocket
- Rebuilding state from the command log
- Offline swap quotes`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	bindFlags(rootCmd.PersistentFlags())
}

// bindFlags registers the config overrides and binds each to viper and to its
// AMM_* environment variable.
func bindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&cfgFile, "config", "", "config file (default is "+defaultConfigPath+" if present)")
	flags.String("db", "", "SQLite database path (default is the OS config dir)")
	flags.String("addr", "", "HTTP listen address")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("fee", "", "swap fee as num/den, e.g. 3/1000")

	for key, env := range map[string]string{
		"db":        "AMM_DB_PATH",
		"addr":      "AMM_LISTEN_ADDR",
		"log-level": "AMM_LOG_LEVEL",
		"fee":       "AMM_FEE",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding flag: %v\n", err)
		}
		if err := viper.BindEnv(key, env); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding env: %v\n", err)
		}
	}
}

func initConfig() {
	if cfgFile == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgFile = defaultConfigPath
		}
	}
}

// loadConfig builds the effective configuration: defaults, then the YAML
// file, then environment and flags.
func loadConfig() (*infra.Config, error) {
	cfg := infra.DefaultConfig()
	if cfgFile != "" {
		loaded, err := infra.LoadConfig(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", cfgFile, err)
		}
		cfg = loaded
	}

	if v := viper.GetString("db"); v != "" {
		cfg.Storage.Path = v
	}
	if v := viper.GetString("addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := viper.GetString("fee"); v != "" {
		fee, err := infra.ParseFee(v)
		if err != nil {
			return nil, err
		}
		cfg.Engine.Fee = fee
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
