package frame

import "fmt"

// SchemaError reports a required column that is absent or has the wrong type
type SchemaError struct {
	Stage  string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "required column missing"
	}
	return fmt.Sprintf("%s: column %q: %s", e.Stage, e.Column, reason)
}
