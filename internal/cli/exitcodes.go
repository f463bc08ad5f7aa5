package cli

// Exit codes returned by the commands
const (
	ExitSuccess = 0 // Run completed (per-entry failures in continue mode included)
	ExitFailure = 1 // Run stopped by an error
	ExitUsage   = 2 // Bad arguments, flags or configuration
)

// usageError marks errors that map to ExitUsage
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func newUsageError(err error) error {
	if err == nil {
		return nil
	}
	return &usageError{err: err}
}
