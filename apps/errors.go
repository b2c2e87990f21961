package apps

import "fmt"

// ArgumentError reports a missing or invalid command line argument.
type ArgumentError struct {
	Arg string
	Msg string
}

func NewArgumentError(arg, msg string) *ArgumentError {
	return &ArgumentError{Arg: arg, Msg: msg}
}

func (err *ArgumentError) Error() string {
	if err.Arg == "" {
		return err.Msg
	}
	return fmt.Sprintf("--%s: %s", err.Arg, err.Msg)
}
