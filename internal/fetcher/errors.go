package fetcher

import "fmt"

// NetworkError reports a transport failure or a non-success HTTP status.
type NetworkError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: request failed: %v", e.Source, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError reports a body that does not match the expected payload shape.
type DecodeError struct {
	Source string
	Field  string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: decode field %q: %v", e.Source, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: decode body: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
