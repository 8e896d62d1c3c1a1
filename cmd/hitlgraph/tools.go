package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dshills/hitlgraph/graph/model"
	"github.com/dshills/hitlgraph/hitl"
	"github.com/dshills/hitlgraph/workflows/confirm"
	"github.com/dshills/hitlgraph/workflows/demo"
	"github.com/spf13/cobra"
)

func (rt *runtime) toolbox() demo.Toolbox {
	return demo.Toolbox{
		Logger: rt.logger.Named("tools"),
		RunHITL: func(ctx context.Context, runID string) (string, error) {
			var answer string
			err := rt.interact(ctx, func(ctx context.Context, ex *hitl.Exchange) error {
				var err error
				answer, err = runConfirm(ctx, rt, ex, runID, rt.cfg.HITL.UserName, "", confirm.DefaultMaxToolRounds)
				return err
			})
			return answer, err
		},
	}
}

func newToolsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List or call the demo tools",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the demo tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				for _, spec := range rt.toolbox().Registry().Specs() {
					fmt.Fprintf(rt.out, "%-22s %s\n", spec.Name, spec.Description)
				}
				return nil
			})
		},
	})

	var input string
	call := &cobra.Command{
		Use:   "call <name>",
		Short: "Call a demo tool and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in map[string]interface{}
			if input != "" {
				if err := json.Unmarshal([]byte(input), &in); err != nil {
					return fmt.Errorf("--input: %w", err)
				}
			}
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				out, err := rt.toolbox().Registry().Execute(ctx, model.ToolCall{Name: args[0], Input: in})
				if err != nil {
					return err
				}
				fmt.Fprintln(rt.out, out)
				return nil
			})
		},
	}
	call.Flags().StringVar(&input, "input", "", "tool input as a JSON object")
	cmd.AddCommand(call)

	return cmd
}
