package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// overwritePrompt asks before replacing a managed kneeboard file.
// Returns (true, nil) if the user confirms or force=true
// Returns (false, nil) if the user declines
// Returns (false, error) if non-interactive without force flag
type overwritePrompt struct {
	force       bool
	in          io.Reader
	out         io.Writer
	interactive func() bool
}

func newOverwritePrompt(force bool) *overwritePrompt {
	return &overwritePrompt{
		force: force,
		in:    os.Stdin,
		out:   os.Stdout,
		interactive: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

// ConfirmOverwrite implements settings.OverwriteConfirmer
func (p *overwritePrompt) ConfirmOverwrite(name string) (bool, error) {
	if p.force {
		return true, nil
	}

	if !p.interactive() {
		return false, fmt.Errorf("%s already exists in the kneeboard directory; use --force to replace it in non-interactive mode", name)
	}

	fmt.Fprintf(p.out, "A file named %q already exists. Replace it? [y/N]: ", name)

	response, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}

	// Parse response (accept y, yes case-insensitive)
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes", nil
}
