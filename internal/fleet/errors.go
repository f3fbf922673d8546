package fleet

import "fmt"

// ValidationError rejects bad input before any side effect.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s=%s: %s", e.Field, e.Value, e.Message)
}

// RegistrationError is terminal for an instance. Registration tokens live in a
// short window, so a blind retry would likely reuse an expired token.
type RegistrationError struct {
	Name   string
	Output string
	Err    error
}

func (e RegistrationError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("register %s: %v: %s", e.Name, e.Err, e.Output)
	}
	return fmt.Sprintf("register %s: %v", e.Name, e.Err)
}

func (e RegistrationError) Unwrap() error { return e.Err }

// FilesystemError marks a per-instance filesystem failure (permissions, quota).
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e FilesystemError) Unwrap() error { return e.Err }
