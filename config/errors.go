package config

import "fmt"

// Error reports an invalid or out-of-range option value. It aborts startup
// before any persistent storage is touched.
type Error struct {
	Option string
	Value  string
	Reason string
}

func (e *Error) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid option -%s: %s", e.Option, e.Reason)
	}
	return fmt.Sprintf("invalid option -%s=%q: %s", e.Option, e.Value, e.Reason)
}
