package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "arbor drives branching multi-model chats against a chat service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// reinitialize the logger once --log-level has been parsed
		return initLogger(viper.GetString("log-level"))
	},
}

func initLogger(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)
	return nil
}

func initViper() error {
	viper.SetEnvPrefix("ARBOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.config/arbor")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	return nil
}

func main() {
	rootCmd.PersistentFlags().String("api-url", "http://localhost:5146", "chat service base URL")
	rootCmd.PersistentFlags().String("token", "", "bearer token for the chat service")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error binding flags: %s\n", err)
		os.Exit(1)
	}
	if err := initViper(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing config: %s\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(newChatCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
