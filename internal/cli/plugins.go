package cli

import (
	"github.com/spf13/cobra"

	"github.com/kappa90/posthog/internal/worker"
)

// NewPluginsCmd создаёт группу команд управления плагинами воркеров.
func NewPluginsCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Manage worker plugins",
	}

	cmd.AddCommand(
		newPluginsReloadCmd(clientFn, outputFn),
		newPluginsTeardownCmd(clientFn, outputFn),
	)

	return cmd
}

func newPluginsReloadCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload plugin configurations on workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.InvokeTask(cmd.Context(), string(worker.TaskReloadPlugins), nil); err != nil {
				return err
			}

			outputFn().Success("Plugin reload enqueued")
			return nil
		},
	}
}

func newPluginsTeardownCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "teardown",
		Short: "Flush producers and tear down all plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.InvokeTask(cmd.Context(), string(worker.TaskTeardownPlugins), nil); err != nil {
				return err
			}

			outputFn().Success("Plugin teardown enqueued")
			return nil
		},
	}
}
