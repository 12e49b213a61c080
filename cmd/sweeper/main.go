// Command sweeper runs the account sweeper service and drives it from the
// command line.
//
//	sweeper serve                      run the service (HTTP API on PORT)
//	sweeper add --owner 42 -f keys.txt register credentials and start monitoring
//	sweeper status --owner 42          show monitored accounts and endpoint health
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"solana-sweeper/internal/config"
)

var v *viper.Viper

var rootCmd = &cobra.Command{
	Use:           "sweeper",
	Short:         "Solana account sweeper",
	Long:          `Watches Solana accounts over a pool of RPC endpoints and forwards incoming lamports to a fixed destination.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	v = config.New()
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file to load")
	rootCmd.AddCommand(serveCmd)
	addClientCommands(rootCmd)
}

func initConfig() {
	envFile, _ := rootCmd.PersistentFlags().GetString("env-file")
	if err := config.LoadEnv(envFile); err != nil {
		log.Printf("Error loading environment: %v", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(component string) *log.Logger {
	return log.New(os.Stdout, "["+component+"] ", log.LstdFlags|log.Lshortfile)
}
