package cmds

import (
	"fmt"
	"io"
	"strings"

	"github.com/tcnksm/go-input"
)

// confirm asks a yes/no question on r/w. It returns true right away when yes is set.
func confirm(r io.Reader, w io.Writer, question string, yes bool) (bool, error) {
	if yes {
		return true, nil
	}

	ui := &input.UI{
		Writer: w,
		Reader: r,
	}

	answer, err := ui.Ask(question+" [y/n]", &input.Options{
		Default:  "n",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch strings.ToLower(answer) {
			case "y", "yes", "n", "no":
				return nil
			default:
				return fmt.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
