package cli

import (
	"github.com/spf13/cobra"

	"github.com/kappa90/posthog/internal/worker"
)

// NewCacheCmd создаёт группу команд управления кэшем организаций.
func NewCacheCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the organization cache",
	}

	cmd.AddCommand(newCacheInvalidateCmd(clientFn, outputFn))

	return cmd
}

func newCacheInvalidateCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	var organizationID string

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Invalidate the cached plugin availability of an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()

			taskArgs := map[string]any{"organizationId": organizationID}
			if err := client.InvokeTask(cmd.Context(), string(worker.TaskInvalidateOrganizationCache), taskArgs); err != nil {
				return err
			}

			outputFn().Success("Cache invalidation enqueued: " + organizationID)
			return nil
		},
	}

	cmd.Flags().StringVar(&organizationID, "organization-id", "", "Organization to invalidate")
	cmd.MarkFlagRequired("organization-id")

	return cmd
}
