package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/harlequingg/taskd/internal/config"
)

var Version = "1.0.0"

type rootOptions struct {
	configFile string
	v          *viper.Viper
}

// load resolves the server configuration. Commands that only talk to a
// remote server never call it.
func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.v, o.configFile)
}

func newRootCmd() (*cobra.Command, error) {
	opts := &rootOptions{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "taskd",
		Short:         "taskd - personal task management service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to a YAML config file")
	if err := config.BindFlags(rootCmd, opts.v); err != nil {
		return nil, err
	}

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(migrateCmd(opts))
	rootCmd.AddCommand(configCmd(opts))
	rootCmd.AddCommand(taskCmd())

	return rootCmd, nil
}

func main() {
	rootCmd, err := newRootCmd()
	if err == nil {
		err = rootCmd.Execute()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
