package render

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
)

// PromptRunInput uses huh to ask the operator for the index range and the
// output folder. Fields already set in defaults are offered as the initial values.
func PromptRunInput(defaults RunInput, rosterSize int) (RunInput, error) {
	if rosterSize <= 0 {
		rosterSize = DefaultRosterSize
	}

	start := intDefault(defaults.Range.Start, 1)
	end := intDefault(defaults.Range.End, rosterSize)
	destination := defaults.Destination

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Start index").
				Description(fmt.Sprintf("First roster entry to render (1-%d)", rosterSize)).
				Value(&start).
				Validate(indexValidator(rosterSize)),
			huh.NewInput().
				Title("End index").
				Description(fmt.Sprintf("Last roster entry to render (1-%d)", rosterSize)).
				Value(&end).
				Validate(indexValidator(rosterSize)),
			huh.NewInput().
				Title("Output folder").
				Description("One subfolder per roster entry is created here").
				Value(&destination).
				Validate(validateFolder),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return RunInput{}, precondition("prompt", "operator cancelled the run", err)
		}
		return RunInput{}, fmt.Errorf("failed to get user input for the run: %w", err)
	}

	input := RunInput{Destination: strings.TrimSpace(destination)}
	input.Range.Start, _ = strconv.Atoi(strings.TrimSpace(start))
	input.Range.End, _ = strconv.Atoi(strings.TrimSpace(end))

	log.Info("Run input collected", "start", input.Range.Start, "end", input.Range.End, "destination", input.Destination)
	return input, nil
}

// NeedsPrompt reports whether any part of the input is still missing
func NeedsPrompt(input RunInput) bool {
	return input.Range.Start == 0 || input.Range.End == 0 || input.Destination == ""
}

func intDefault(value, fallback int) string {
	if value == 0 {
		value = fallback
	}
	return strconv.Itoa(value)
}

func indexValidator(rosterSize int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("enter a whole number")
		}
		if n < 1 || n > rosterSize {
			return fmt.Errorf("must be between 1 and %d", rosterSize)
		}
		return nil
	}
}

func validateFolder(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("an output folder is required")
	}
	info, err := os.Stat(s)
	if err != nil {
		return fmt.Errorf("folder is not accessible: %v", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a folder")
	}
	return nil
}
