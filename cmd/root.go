package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voiplab/sipbox/pkg/config"
	"github.com/voiplab/sipbox/pkg/telemetry"
)

var (
	cfgFile string
	verbose bool
	// Version, GitCommit, and BuildTime are set via ldflags during build
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sipbox",
	Short: "Provision and reconcile the network identity of a local VoIP sandbox",
	Long: `sipbox derives host and per-service IP addresses for a local multi-service
VoIP sandbox, generates the DNS zone and TLS certificates bound to those
addresses, and detects when the host network has drifted (new Wi-Fi network,
new DHCP lease) so dependent configuration regenerates without a full
re-initialization.

It generates configuration consumed by an external resolver and invokes
external certificate tooling; it does not serve DNS or issue certificates
itself.`,
	Version: Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := telemetry.Init(telemetry.DefaultConfig()); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: telemetry init failed:", err)
	}
	defer telemetry.Shutdown(context.Background())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.SetVersionTemplate(fmt.Sprintf(`sipbox {{.Version}}
Commit:  %s
Built:   %s
`, GitCommit, BuildTime))

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./sipbox.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// findEnvFile searches for a .env file in current and parent directories
func findEnvFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for i := 0; i < 10; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// initConfig reads in the config file and environment variables if set
func initConfig() {
	if envFile := findEnvFile(); envFile != "" {
		_ = godotenv.Load(envFile)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("sipbox")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SIPBOX")

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// loadConfig loads the project configuration honoring the --config flag
func loadConfig() (*config.Config, error) {
	return config.LoadConfig(cfgFile)
}
