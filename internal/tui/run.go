package tui

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/livescribe/internal/capture"
)

// Run starts the interactive recorder on the terminal and blocks until the
// user quits or ctx is cancelled. The controller is closed on exit.
func Run(ctx context.Context, ctrl *capture.Controller, logger *logrus.Logger) error {
	p := tea.NewProgram(New(ctrl, os.Stdout), tea.WithAltScreen(), tea.WithContext(ctx))

	ctrl.Subscribe(func(ev capture.Event) {
		p.Send(EventMsg{Event: ev})
	})

	logger.Info("tui: started")
	_, err := p.Run()
	if cerr := ctrl.Close(); cerr != nil {
		logger.WithError(cerr).Warn("tui: controller close")
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
