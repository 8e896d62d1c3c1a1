package main

import (
	"context"
	"fmt"

	"github.com/dshills/hitlgraph/graph/tool"
	"github.com/dshills/hitlgraph/hitl"
	"github.com/dshills/hitlgraph/workflows/adventure"
	"github.com/dshills/hitlgraph/workflows/confirm"
	"github.com/dshills/hitlgraph/workflows/demo"
	"github.com/dshills/hitlgraph/workflows/research"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// withRuntime loads the runtime for cmd and closes it after fn.
func (c *cli) withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	if err := c.requireConfig(); err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), c.cfg, c.logger, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	return fn(cmd.Context(), rt)
}

// runConfirm runs the confirmation agent against ex.
func runConfirm(ctx context.Context, rt *runtime, ex *hitl.Exchange, runID, userName, message string, maxRounds int, extra ...tool.Tool) (string, error) {
	chat, err := newChatModel(rt.cfg.LLM, false)
	if err != nil {
		return "", err
	}
	st, err := openStore[confirm.State](rt.cfg)
	if err != nil {
		return "", err
	}
	defer st.Close()

	wf, err := confirm.New(chat, ex, rt.emitter,
		confirm.WithUserName(userName),
		confirm.WithMaxToolRounds(maxRounds),
		confirm.WithTools(extra...),
		confirm.WithStore(st),
		confirm.WithEngineOptions(rt.engineOptions()...),
		confirm.WithLogger(rt.logger.Named("confirm")))
	if err != nil {
		return "", err
	}
	return wf.Run(ctx, runID, message)
}

func newConfirmCmd(c *cli) *cobra.Command {
	var (
		userName  string
		message   string
		maxRounds int
		demoTools bool
	)
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Run the agent that asks before performing a dangerous task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				if userName == "" {
					userName = rt.cfg.HITL.UserName
				}
				var extra []tool.Tool
				if demoTools {
					tb := demo.Toolbox{Logger: rt.logger.Named("tools")}
					extra = append(extra, tb.DatetimeTool(), tb.UserInfoTool(), tb.IPInfoTool())
				}
				return rt.interact(ctx, func(ctx context.Context, ex *hitl.Exchange) error {
					answer, err := runConfirm(ctx, rt, ex, uuid.NewString(), userName, message, maxRounds, extra...)
					if err != nil {
						return err
					}
					fmt.Fprintln(rt.out, answer)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&userName, "user", "", "name the confirmation is addressed to (default from config)")
	cmd.Flags().StringVarP(&message, "message", "m", confirm.DefaultUserMessage, "message sent to the agent")
	cmd.Flags().IntVar(&maxRounds, "max-tool-rounds", confirm.DefaultMaxToolRounds, "maximum agent turns that call tools")
	cmd.Flags().BoolVar(&demoTools, "demo-tools", false, "also offer the datetime, user info and IP info tools")
	return cmd
}

func newResearchCmd(c *cli) *cobra.Command {
	var (
		maxAttempts int
		runID       string
		resume      bool
	)
	cmd := &cobra.Command{
		Use:   "research [query]",
		Short: "Research a topic with human review before the report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := "Artificial Intelligence"
			if len(args) == 1 {
				query = args[0]
			}
			if resume && runID == "" {
				return fmt.Errorf("--resume requires --run-id")
			}
			if runID == "" {
				runID = uuid.NewString()
			}

			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				st, err := openStore[research.State](rt.cfg)
				if err != nil {
					return err
				}
				defer st.Close()

				return rt.interact(ctx, func(ctx context.Context, ex *hitl.Exchange) error {
					wf, err := research.New(ex, rt.emitter,
						research.WithMaxAttempts(maxAttempts),
						research.WithStore(st),
						research.WithEngineOptions(rt.engineOptions()...),
						research.WithLogger(rt.logger.Named("research")))
					if err != nil {
						return err
					}

					var report string
					if resume {
						report, err = wf.Resume(ctx, runID)
					} else {
						report, err = wf.Run(ctx, runID, query)
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(rt.out, "Final result: %s\n", report)
					return nil
				})
			})
		},
	}
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", research.DefaultMaxAttempts, "maximum research rounds")
	cmd.Flags().StringVar(&runID, "run-id", "", "run ID (generated when empty)")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume --run-id at its review step")
	return cmd
}

func newAdventureCmd(c *cli) *cobra.Command {
	var (
		blocks int
		runID  string
	)
	cmd := &cobra.Command{
		Use:   "adventure",
		Short: "Co-write a choose-your-own-adventure story",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				runID = uuid.NewString()
			}
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				chat, err := newChatModel(rt.cfg.LLM, true)
				if err != nil {
					return err
				}
				st, err := openStore[adventure.State](rt.cfg)
				if err != nil {
					return err
				}
				defer st.Close()

				return rt.interact(ctx, func(ctx context.Context, ex *hitl.Exchange) error {
					wf, err := adventure.New(chat, ex, rt.emitter,
						adventure.WithMaxBlocks(blocks),
						adventure.WithStore(st),
						adventure.WithEngineOptions(rt.engineOptions()...),
						adventure.WithLogger(rt.logger.Named("adventure")))
					if err != nil {
						return err
					}
					story, err := wf.Run(ctx, runID)
					if err != nil {
						return err
					}
					fmt.Fprintln(rt.out)
					fmt.Fprintln(rt.out, adventure.FinalStory(story))
					return nil
				})
			})
		},
	}
	cmd.Flags().IntVar(&blocks, "blocks", adventure.DefaultMaxBlocks, "interactive blocks before the ending")
	cmd.Flags().StringVar(&runID, "run-id", "", "run ID (generated when empty)")
	return cmd
}
