// Package prompt asks the operator before destructive CLI actions.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user presses Ctrl+C at a prompt.
var ErrAborted = errors.New("aborted")

// IsAborted reports whether err means the user left the prompt.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF)
}

// Confirm asks a yes/no question. An empty answer selects defaultYes.
func Confirm(label string, defaultYes bool) (bool, error) {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}

	p := promptui.Prompt{
		Label:     fmt.Sprintf("%s [%s]", label, hint),
		IsConfirm: true,
	}

	answer, err := p.Run()
	switch {
	case err == nil:
	case errors.Is(err, promptui.ErrInterrupt), errors.Is(err, promptui.ErrEOF):
		return false, ErrAborted
	case errors.Is(err, promptui.ErrAbort):
		// promptui reports any answer other than "y" as ErrAbort.
		if strings.TrimSpace(answer) == "" {
			return defaultYes, nil
		}
		return false, nil
	default:
		return false, err
	}

	return isYes(answer), nil
}

// ConfirmWithForce returns true without asking when force is set.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return Confirm(label, false)
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
