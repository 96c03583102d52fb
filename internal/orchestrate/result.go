package orchestrate

import "fmt"

// FailureKind classifies why an operation did not succeed.
type FailureKind string

const (
	KindValidation FailureKind = "validation"
	KindNotFound   FailureKind = "not_found"
	KindPermission FailureKind = "permission"
	KindExecution  FailureKind = "execution"
	KindSystem     FailureKind = "system"
)

// Failure is the error side of a Result.
type Failure struct {
	Kind    FailureKind    `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (f *Failure) String() string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Result is the discriminated outcome of an orchestrator operation:
// either OK with Data, or a Failure. No exceptions cross this boundary.
type Result[T any] struct {
	OK   bool     `json:"ok"`
	Data T        `json:"data,omitempty"`
	Err  *Failure `json:"error,omitempty"`
}

func ok[T any](v T) Result[T] {
	return Result[T]{OK: true, Data: v}
}

func fail[T any](kind FailureKind, format string, args ...any) Result[T] {
	return Result[T]{Err: &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

func failDetails[T any](kind FailureKind, details map[string]any, format string, args ...any) Result[T] {
	return Result[T]{Err: &Failure{Kind: kind, Message: fmt.Sprintf(format, args...), Details: details}}
}

func failWith[T any](f Failure) Result[T] {
	return Result[T]{Err: &f}
}
