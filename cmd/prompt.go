package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/zjrosen/agentbridge/internal/pathdetect"
)

// prompter asks the user the questions a run can raise.
type prompter interface {
	// ChooseHandling asks what to do with a local file found in the prompt.
	ChooseHandling(written string) (pathdetect.HandlingOption, error)
	// ConfirmPlan asks whether to approve the plan Devin proposed.
	ConfirmPlan() (bool, error)
}

// huhPrompter asks through huh forms on the controlling terminal.
type huhPrompter struct{}

// newForm honours ACCESSIBLE for screen readers.
func newForm(groups ...*huh.Group) *huh.Form {
	return huh.NewForm(groups...).WithAccessible(os.Getenv("ACCESSIBLE") != "")
}

func (huhPrompter) ChooseHandling(written string) (pathdetect.HandlingOption, error) {
	choice := pathdetect.Upload
	form := newForm(
		huh.NewGroup(
			huh.NewSelect[pathdetect.HandlingOption]().
				Title(fmt.Sprintf("Found local file %s", written)).
				Description("Devin cannot read local files unless they are uploaded.").
				Options(
					huh.NewOption("Upload it for Devin", pathdetect.Upload),
					huh.NewOption("Process locally (leave the path as written)", pathdetect.ProcessLocally),
					huh.NewOption("Cancel the request", pathdetect.Cancel),
				).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return pathdetect.Cancel, nil
		}
		return pathdetect.Cancel, fmt.Errorf("file prompt: %w", err)
	}
	return choice, nil
}

func (huhPrompter) ConfirmPlan() (bool, error) {
	approve := true
	form := newForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Approve Devin's plan?").
				Affirmative("Approve").
				Negative("Reject").
				Value(&approve),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("plan prompt: %w", err)
	}
	return approve, nil
}
