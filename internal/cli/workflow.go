package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewWorkflowCmd создаёт группу команд для управления workflows.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"wf"},
		Short:   "Manage workflows",
	}

	cmd.AddCommand(
		newWorkflowListCmd(clientFn, outputFn),
		newWorkflowCreateCmd(clientFn, outputFn),
		newWorkflowShowCmd(clientFn, outputFn),
		newWorkflowUpdateCmd(clientFn, outputFn),
		newWorkflowDeleteCmd(clientFn, outputFn),
		newWorkflowExecuteCmd(clientFn, outputFn),
		newWorkflowHistoryCmd(clientFn, outputFn),
	)

	return cmd
}

var workflowHeaders = []string{"ID", "NAME", "NODES", "EDGES", "UPDATED"}

func workflowRow(wf WorkflowResponse) []string {
	return []string{
		wf.ID,
		wf.Name,
		strconv.Itoa(countItems(wf.Nodes)),
		strconv.Itoa(countItems(wf.Edges)),
		wf.UpdatedAt,
	}
}

func newWorkflowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			workflows, err := clientFn().ListWorkflows()
			if err != nil {
				return err
			}

			rows := make([][]string, len(workflows))
			for i, wf := range workflows {
				rows[i] = workflowRow(wf)
			}

			outputFn().Print(workflowHeaders, rows, workflows)
			return nil
		},
	}
}

func newWorkflowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string
	var name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a workflow from a graph JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(file, name)
			if err != nil {
				return err
			}

			wf, err := clientFn().CreateWorkflow(doc)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Workflow created: %s", wf.ID))
			out.Print(workflowHeaders, [][]string{workflowRow(*wf)}, wf)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Graph JSON file ({name, nodes, edges})")
	cmd.Flags().StringVar(&name, "name", "", "Workflow name (overrides the file)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newWorkflowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show WORKFLOW_ID",
		Short: "Show workflow details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := clientFn().GetWorkflow(args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			if out.IsJSON() {
				out.JSON(wf)
				return nil
			}
			out.Table(workflowHeaders, [][]string{workflowRow(*wf)})
			return nil
		},
	}
}

func newWorkflowUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string
	var name string

	cmd := &cobra.Command{
		Use:   "update WORKFLOW_ID",
		Short: "Replace workflow graph and/or name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" && name == "" {
				return fmt.Errorf("nothing to update: use --file or --name")
			}

			doc, err := readDocument(file, name)
			if err != nil {
				return err
			}

			wf, err := clientFn().UpdateWorkflow(args[0], doc)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Workflow updated: %s", wf.ID))
			out.Print(workflowHeaders, [][]string{workflowRow(*wf)}, wf)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Graph JSON file")
	cmd.Flags().StringVar(&name, "name", "", "New workflow name")

	return cmd
}

func newWorkflowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete WORKFLOW_ID",
		Short: "Delete a workflow and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteWorkflow(args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Workflow deleted: %s", args[0]))
			return nil
		},
	}
}

func newWorkflowExecuteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var nodes []string

	cmd := &cobra.Command{
		Use:   "execute WORKFLOW_ID",
		Short: "Execute a workflow (whole graph or --node targets)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ExecuteRequest{Scope: "full"}
			switch len(nodes) {
			case 0:
			case 1:
				req = ExecuteRequest{Scope: "single", NodeIDs: nodes}
			default:
				req = ExecuteRequest{Scope: "selected", NodeIDs: nodes}
			}

			exec, err := clientFn().Execute(args[0], req)
			if err != nil {
				return err
			}

			printExecution(outputFn(), exec)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&nodes, "node", nil, "Target node ID (repeatable); dependencies run too")

	return cmd
}

func newWorkflowHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history WORKFLOW_ID",
		Short: "List recent executions of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			executions, err := clientFn().ListExecutions(args[0], limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "STATUS", "SCOPE", "DURATION", "STARTED"}
			rows := make([][]string, len(executions))
			for i, e := range executions {
				rows[i] = []string{e.ID, e.Status, e.Scope, strconv.FormatInt(e.DurationMs, 10) + "ms", e.StartedAt}
			}

			outputFn().Print(headers, rows, executions)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (server default: 50)")

	return cmd
}

// readDocument читает JSON документ workflow из файла и подставляет name.
func readDocument(file, name string) (json.RawMessage, error) {
	doc := map[string]json.RawMessage{}

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
	}

	if name != "" {
		encoded, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		doc["name"] = encoded
	}

	return json.Marshal(doc)
}
