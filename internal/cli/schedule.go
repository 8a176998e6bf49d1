package cli

import (
	"github.com/spf13/cobra"

	"github.com/kappa90/posthog/internal/worker"
)

// NewScheduleCmd создаёт группу команд управления расписанием.
func NewScheduleCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage the plugin schedule",
	}

	cmd.AddCommand(newScheduleReloadCmd(clientFn, outputFn))

	return cmd
}

func newScheduleReloadCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Rebuild the schedule table from the current registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.InvokeTask(cmd.Context(), string(worker.TaskReloadSchedule), nil); err != nil {
				return err
			}

			outputFn().Success("Schedule reload enqueued")
			return nil
		},
	}
}
