package main

import "fmt"

// ConfigError reports a missing or out-of-range setting. It blocks the
// action it was raised for and never crashes the process.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// RequestError reports a network or remote-service failure. The turn it
// aborted can be resubmitted; prior history is intact.
type RequestError struct {
	Status int // HTTP status, 0 when the request never got a response
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request: API error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("request: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// DecodeError reports an undecodable stream fragment or tokenizer failure.
// Partial output already rendered is kept, but the operation is failed.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }
