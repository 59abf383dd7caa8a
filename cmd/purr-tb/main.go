// purr-tb checks PURR accounting on SMT Power cores. For every interval it
// sums the PURR increments of each active core's online threads and prints
// the sum next to the number of timebase ticks that elapsed. On a healthy
// system the two columns agree.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/nhdewitt/purrtb/internal/config"
	"github.com/nhdewitt/purrtb/internal/monitor"
)

const (
	exitFailure = 1
	exitUsage   = 2
)

// usageError prints usage to stderr before exiting with exitUsage.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }
func (e *usageError) ExitCode() int { return exitUsage }

func main() {
	if err := run(os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(exitFailure)
	}
}

// run parses args and runs the monitor. lookupEnv supplies the environment
// overrides.
func run(args []string, lookupEnv func(string) (string, bool), stdout, stderr io.Writer) error {
	flagSet := config.NewFlagSet("purr-tb")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stdout, flagSet)
			return nil
		}
		printHelp(stderr, flagSet)
		return &usageError{err: err}
	}

	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stdout, flagSet)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		printHelp(stderr, flagSet)
		return &usageError{err: fmt.Errorf("unexpected argument: %s", rest[0])}
	}

	cfg, err := config.FromFlags(flagSet, lookupEnv)
	if err != nil {
		var argErr *config.ArgumentError
		if errors.As(err, &argErr) {
			printHelp(stderr, flagSet)
			return &usageError{err: err}
		}
		return err
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	m := monitor.New(cfg, monitor.Deps{
		Logger: logger,
		Out:    stdout,
	})
	return m.Run(context.Background())
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `purr-tb: compare per-core PURR increments with elapsed timebase ticks.

Usage:
  purr-tb -i <interval seconds> -s <samples count>

Examples:
  # Ten one-second rounds
  purr-tb

  # Five rounds of three seconds
  purr-tb --interval 3 --samples 5

Environment:
  %s, %s, %s, %s override the config file.

Flags:
`, config.EnvInterval, config.EnvSamples, config.EnvSysfsRoot, config.EnvCPUInfo)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
