package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/blockflow/examples/bintree"
	"github.com/randalmurphal/blockflow/examples/hashtable"
	"github.com/randalmurphal/blockflow/pkg/blockflow/config"
	"github.com/randalmurphal/blockflow/pkg/blockflow/local"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	workers    int
	logLevel   string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "blockflow",
		Short:         "Run task programs over relocatable memory blocks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML or JSON runtime config")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "Override the number of workers")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")

	cmd.AddCommand(newBintreeCmd(opts), newHashtableCmd(opts), newConfigCmd(opts))
	return cmd
}

// load resolves the effective configuration.
func (o *rootOptions) load() (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.FromFile(o.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if o.workers > 0 {
		cfg.Workers = o.workers
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, cfg.Validate()
}

// run builds a runtime from the configuration and hands it to fn. The
// run is bounded by shutdown_timeout when one is set.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, rt *local.Runtime) error) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(cmd.ErrOrStderr())
	rt, err := local.FromConfig(cfg, local.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			logger.Warn("close runtime", "error", cerr)
		}
	}()

	ctx := cmd.Context()
	if cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ShutdownTimeout)
		defer cancel()
	}
	return fn(ctx, rt)
}

func newBintreeCmd(opts *rootOptions) *cobra.Command {
	var puts int
	var key uint64
	cmd := &cobra.Command{
		Use:   "bintree",
		Short: "Build a binary tree in one arena and look a key up from a task",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, rt *local.Runtime) error {
				value, found, err := bintree.Run(ctx, rt, puts, key)
				if err != nil {
					return err
				}
				printLookup(cmd.OutOrStdout(), key, value, found)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&puts, "puts", "n", 100, "Number of entries to insert")
	cmd.Flags().Uint64VarP(&key, "key", "k", 6, "Key to look up")
	return cmd
}

func newHashtableCmd(opts *rootOptions) *cobra.Command {
	var puts int
	var key uint64
	cmd := &cobra.Command{
		Use:   "hashtable",
		Short: "Fill a task-driven hash table and look a key up",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, rt *local.Runtime) error {
				res, err := hashtable.Run(ctx, rt, puts, key)
				if err != nil {
					return err
				}
				printLookup(cmd.OutOrStdout(), key, res.Value, res.Found)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&puts, "puts", "n", 10, "Number of entries to insert")
	cmd.Flags().Uint64VarP(&key, "key", "k", 6, "Key to look up")
	return cmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func printLookup(w io.Writer, key uint64, value byte, found bool) {
	if !found {
		fmt.Fprintf(w, "key %d: not found\n", key)
		return
	}
	fmt.Fprintf(w, "key %d: %c\n", key, value)
}
