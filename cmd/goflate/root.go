// Command goflate is the thin CLI driver described in spec.md §6: three
// subcommands (compress, extract, list) over the zlib/zipfile/deflate
// core, exit code 0 on success, 1 on invalid arguments, 2 on I/O or
// format error.
//
// Grounded on alec-rabold-zipspy's cmd/root.go (cobra root command,
// go-homedir config lookup) and ossyrian-mintyparse's main.go (viper
// flag binding, env prefix, structured logging setup).
package main

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-students/goflate/internal/logx"
)

const exitUsage = 1
const exitFailure = 2

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "goflate",
	Short: "Compress, extract and list ZIP archives using a from-scratch DEFLATE/zlib/ZIP implementation",
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.goflate.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-dir", "", "directory to also write JSON logs to")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug-level logging")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_dir", rootCmd.PersistentFlags().Lookup("log-dir"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(compressCmd, extractCmd, listCmd)

	// Report cobra's own flag and argument-count errors as usage errors.
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	for _, c := range rootCmd.Commands() {
		if check := c.Args; check != nil {
			c.Args = func(cmd *cobra.Command, args []string) error {
				if err := check(cmd, args); err != nil {
					return usageError{err}
				}
				return nil
			}
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".goflate")
	}

	viper.SetEnvPrefix("GOFLATE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

func setupLogging() error {
	level := viper.GetString("log_level")
	if viper.GetBool("verbose") {
		level = "debug"
	}
	return logx.Setup(level, viper.GetString("log_dir"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFromError(err))
	}
}

// exitFromError maps a command error to spec.md §6's exit code taxonomy.
// cobra's own usage errors (bad flags, wrong arg count) are distinguished
// from core-library errors by the usageError marker type.
func exitFromError(err error) int {
	if _, ok := err.(usageError); ok {
		return exitUsage
	}
	return exitFailure
}

// usageError marks an error as an invalid-arguments condition (exit 1)
// rather than an I/O or format error (exit 2).
type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }
