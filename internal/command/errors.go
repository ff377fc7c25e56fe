package command

import (
	"errors"
	"fmt"

	"github.com/adamavenir/parley/internal/remote"
	"github.com/spf13/cobra"
)

var (
	errNoSocket = errors.New("socket_url is not configured")
	errNoAPI    = errors.New("api_url is not configured")
)

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())

	switch {
	case errors.Is(err, errNoSocket), errors.Is(err, errNoAPI):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: set it in parley.yaml or run: parley init")
	case remote.IsUnavailable(err):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: the chat service is unreachable; local data is still available offline.")
	}

	return err
}
