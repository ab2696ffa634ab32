package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitUnacceptable = 1 // classification below the activity minimum, or invalid config
	ExitError        = 2
)

// checkFailedError reports a completed check whose outcome was negative
type checkFailedError struct {
	msg string
}

func (e *checkFailedError) Error() string {
	return e.msg
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var failed *checkFailedError
		if errors.As(err, &failed) {
			os.Exit(ExitUnacceptable)
		}
		os.Exit(ExitError)
	}
}
