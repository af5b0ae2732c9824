package core

import "context"

// Row is one data record of a tabular input, keyed by header column.
// Index is zero-based and counts data records only (the header is not a row).
type Row struct {
	Index  int
	Values map[string]string
}

// Get returns the value of column, or "" when the column is absent.
func (r Row) Get(column string) string {
	return r.Values[column]
}

// RowSource streams rows in file order. Next returns io.EOF once exhausted.
type RowSource interface {
	Header() []string
	Next() (Row, error)
}

// RowSink persists rendered output rows. Implementations must make each
// Write durable before returning.
type RowSink interface {
	Write(record []string) error
}

// Processor transforms one input item into one output item.
type Processor[In any, Out any] interface {
	Process(ctx context.Context, in In) (Out, error)
}

// ProcessFunc adapts a function to the Processor interface.
type ProcessFunc[In any, Out any] func(ctx context.Context, in In) (Out, error)

func (f ProcessFunc[In, Out]) Process(ctx context.Context, in In) (Out, error) {
	return f(ctx, in)
}

// TransientError marks an error as retryable by worker implementations.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// LimitedTransientError is retryable, but at most ExtraRetries times
// regardless of the worker's configured retry budget.
type LimitedTransientError struct {
	Err          error
	ExtraRetries int
}

func (e *LimitedTransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *LimitedTransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *LimitedTransientError) MaxExtraRetries() int {
	if e == nil {
		return 0
	}
	return e.ExtraRetries
}
