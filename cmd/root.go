/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "serial-assistant",
	Short: "Inspect, talk to and capture serial ports",
	Long: `serial-assistant lists serial ports, opens them with a chosen line
configuration and exchanges data with the attached device.

Ports can be given by path (/dev/ttyUSB0) or by their index in the
"serial-assistant list" output.

Settings can also come from $HOME/.serial-assistant.yaml or from
SERIAL_* environment variables, e.g. SERIAL_BAUD=9600.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.serial-assistant.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to this file (TUI commands log nowhere without it)")

	cobra.CheckErr(viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")))
	cobra.CheckErr(viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file")))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".serial-assistant")
	}

	viper.SetEnvPrefix("SERIAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func logLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.WarnLevel
	}
	return level
}

// newLogger logs to stderr, or to --log-file when set
func newLogger() (zerolog.Logger, func(), error) {
	return buildLogger(os.Stderr)
}

// newTUILogger never writes to the terminal, which belongs to the TUI
func newTUILogger() (zerolog.Logger, func(), error) {
	return buildLogger(nil)
}

func buildLogger(console io.Writer) (zerolog.Logger, func(), error) {
	out := console
	closeFn := func() {}

	if path := viper.GetString("log-file"); path != "" {
		f, err := afero.NewOsFs().OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), closeFn, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	} else if out != nil {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	if out == nil {
		return zerolog.Nop(), closeFn, nil
	}
	return zerolog.New(out).Level(logLevel()).With().Timestamp().Logger(), closeFn, nil
}
