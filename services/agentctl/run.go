// Package agentctl implements the agentdock command line: offline asset classification,
// headless onboarding and editing through the wizard, and agent export archives.
package agentctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"agentdock/services/wizard"
)

// RunConfig configures a headless wizard run.
type RunConfig struct {
	Services wizard.Services
	UserID   string
	// AgentID selects edit mode.
	AgentID      string
	Draft        DraftFile
	FetchTimeout time.Duration
	Logger       zerolog.Logger
	Stdout       io.Writer
}

// Run drives a wizard through every step with the draft applied and returns the saved
// agent id. Validation failures are printed per field.
func Run(ctx context.Context, cfg RunConfig) (string, error) {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	mode := wizard.ModeCreate
	if cfg.AgentID != "" {
		mode = wizard.ModeEdit
	}

	w, err := wizard.New(cfg.Services, wizard.Config{
		Mode:             mode,
		AgentID:          cfg.AgentID,
		UserID:           cfg.UserID,
		TransitionWindow: -1,
		FetchTimeout:     cfg.FetchTimeout,
		Logger:           cfg.Logger,
	})
	if err != nil {
		return "", err
	}
	defer w.Close()

	if err := w.Open(ctx); err != nil {
		return "", err
	}
	w.Settle()

	if err := cfg.Draft.Apply(w); err != nil {
		return "", err
	}

	for !w.Closed() {
		step := w.Step()
		if err := w.Advance(ctx); err != nil {
			return "", report(cfg.Stdout, step, err)
		}
	}

	id := w.AgentID()
	fmt.Fprintf(cfg.Stdout, "agent %s %s\n", id, map[wizard.Mode]string{
		wizard.ModeCreate: "submitted",
		wizard.ModeEdit:   "updated",
	}[mode])
	return id, nil
}

func report(out io.Writer, step int, err error) error {
	var verrs wizard.ValidationErrors
	if errors.As(err, &verrs) {
		fmt.Fprintf(out, "step %d (%s) has problems:\n", step, wizard.StepTitle(step))
		for _, fe := range verrs {
			fmt.Fprintf(out, "  - %s: %s\n", fe.Field, fe.Message)
		}
		return err
	}
	var se *wizard.SubmitError
	if errors.As(err, &se) {
		fmt.Fprintf(out, "submission failed (%s): %s\n", se.Category, se.Message)
	}
	return err
}

// PrintNotifier writes success notices to a terminal.
type PrintNotifier struct {
	Out io.Writer
}

// Success prints the notice message.
func (p PrintNotifier) Success(_ context.Context, n wizard.Notice) error {
	_, err := fmt.Fprintln(p.Out, n.Message)
	return err
}
