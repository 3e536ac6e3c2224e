package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для просмотра executions.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "execution",
		Aliases: []string{"exec"},
		Short:   "Inspect executions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show EXECUTION_ID",
		Short: "Show an execution with per-node results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := clientFn().GetExecution(args[0])
			if err != nil {
				return err
			}

			printExecution(outputFn(), exec)
			return nil
		},
	})

	return cmd
}

// printExecution выводит сводку execution и таблицу узлов.
func printExecution(out *Output, exec *ExecutionResponse) {
	if out.IsJSON() {
		out.JSON(exec)
		return
	}

	out.Success(fmt.Sprintf("Execution %s: %s (scope %s, %dms)", exec.ID, exec.Status, exec.Scope, exec.DurationMs))
	if exec.Error != "" {
		out.Error(exec.Error)
	}
	if len(exec.NodeResults) > 0 {
		out.Table(nodeResultHeaders, nodeResultRows(exec.NodeResults))
	}
}
