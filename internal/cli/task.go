package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kappa90/posthog/internal/worker"
)

// knownTasks — имена и назначение задач dispatch table (для task list).
var knownTasks = []struct {
	Name        worker.TaskName `json:"name"`
	Description string          `json:"description"`
}{
	{worker.TaskRunPluginJob, "Run a named job hook of one plugin"},
	{worker.TaskRunEveryMinute, "Run the everyMinute cadence bucket"},
	{worker.TaskRunEveryHour, "Run the everyHour cadence bucket"},
	{worker.TaskRunEveryDay, "Run the everyDay cadence bucket"},
	{worker.TaskGetSchedule, "Return the current schedule table"},
	{worker.TaskScheduleReady, "Report whether the schedule has been loaded"},
	{worker.TaskReloadPlugins, "Reload plugin configurations"},
	{worker.TaskReloadSchedule, "Rebuild the schedule table"},
	{worker.TaskTeardownPlugins, "Flush producers and tear down plugins"},
	{worker.TaskFlushMessages, "Await broker confirms for pending messages"},
	{worker.TaskInvalidateOrganizationCache, "Drop a cached organization entry"},
	{worker.TaskRunEventPipeline, "Run one event through the plugin pipeline"},
}

// NewTaskCmd создаёт группу команд работы с задачами.
func NewTaskCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Work with worker tasks",
	}

	cmd.AddCommand(
		newTaskListCmd(outputFn),
		newTaskRunCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskListCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks workers understand",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			headers := []string{"TASK", "DESCRIPTION"}
			rows := make([][]string, len(knownTasks))
			for i, t := range knownTasks {
				rows[i] = []string{string(t.Name), t.Description}
			}

			out.Print(headers, rows, knownTasks)
			return nil
		},
	}
}

func newTaskRunCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	var taskArgs []string

	cmd := &cobra.Command{
		Use:   "run TASK",
		Short: "Enqueue an arbitrary task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()

			var parsed map[string]any
			if len(taskArgs) > 0 {
				parsed = make(map[string]any)
				for _, kv := range taskArgs {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid arg format %q, expected KEY=VALUE", kv)
					}
					parsed[parts[0]] = parts[1]
				}
			}

			if err := client.InvokeTask(cmd.Context(), args[0], parsed); err != nil {
				return err
			}

			outputFn().Success("Task enqueued: " + args[0])
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&taskArgs, "arg", nil, "Task arguments as KEY=VALUE (repeatable)")

	return cmd
}

// NewFlushCmd создаёт команду flush.
func NewFlushCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Ask workers to await broker confirms for pending messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.InvokeTask(cmd.Context(), string(worker.TaskFlushMessages), nil); err != nil {
				return err
			}

			outputFn().Success("Flush enqueued")
			return nil
		},
	}
}
