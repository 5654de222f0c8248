package config

import "fmt"

// OptionError reports a WITH option that is missing, unsupported or cannot
// be converted to the type the plugin manifest declares.
type OptionError struct {
	Option string
	Err    error
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("option %q: %v", e.Option, e.Err)
}

func (e *OptionError) Unwrap() error {
	return e.Err
}
