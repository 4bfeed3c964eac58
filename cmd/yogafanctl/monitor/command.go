package monitor

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mdouchement/logger"
	"github.com/spf13/cobra"

	"yogafanctl"
)

// Command builds the TUI monitor subcommand. The controller is created
// lazily so flag parsing happens before any privileged work.
func Command(provider func() (*yogafanctl.Controller, logger.Logger, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Continuously display fan speeds and CPU temperature",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctrl, _, err := provider()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			m := newTUI()
			tui := tea.NewProgram(m, tea.WithAltScreen())

			go func() {
				for status := range ctrl.Monitor(ctx) {
					tui.Send(status)
				}
				tui.Quit()
			}()

			_, err = tui.Run()
			return err
		},
	}
}
