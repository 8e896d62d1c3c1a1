package main

import (
	"fmt"

	"github.com/dshills/hitlgraph/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli holds state shared by all subcommands.
type cli struct {
	configPath string
	store      string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "hitlgraph",
		Short: "Human-in-the-loop workflows on a graph engine",
		Long: `hitlgraph runs small workflows that pause for a human answer on the
terminal: an agent that confirms before a dangerous task, a research loop
with human review, and a choose-your-own-adventure story. It can also add
worklog entries to JIRA.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			if c.store != "" {
				cfg.Store.Location = c.store
			}
			if c.verbose {
				cfg.Log.Level = "debug"
			}
			logger, err := cfg.Log.NewLogger()
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = c.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "hitlgraph.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&c.store, "store", "", "step store: memory, sqlite:<path>, mysql:<dsn> or redis://...")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newConfirmCmd(c),
		newResearchCmd(c),
		newAdventureCmd(c),
		newWorklogCmd(c),
		newToolsCmd(c),
	)
	return root
}

func (c *cli) requireConfig() error {
	if c.cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}
	return nil
}
