package core

// Result is the envelope every adapter operation returns.
//
// Exactly one of Data and Error is meaningful: a failed result carries the
// zero value of T. Count is set when the backend reports a total (select
// ignoring limit/offset) or an affected-row count (update, delete).
type Result[T any] struct {
	Data  T      `json:"data"`
	Error *Error `json:"error"`
	Count *int64 `json:"count,omitempty"`
}

// OK wraps a successful value
func OK[T any](data T) Result[T] {
	return Result[T]{Data: data}
}

// OKWithCount wraps a successful value together with a row count
func OKWithCount[T any](data T, count int64) Result[T] {
	return Result[T]{Data: data, Count: &count}
}

// Fail wraps an adapter error
func Fail[T any](err *Error) Result[T] {
	return Result[T]{Error: err}
}

// Empty is the data-less success returned by delete and transaction
func Empty() Result[struct{}] {
	return Result[struct{}]{}
}

// Err returns the error as a plain error value, or nil on success.
// It avoids the typed-nil trap of returning r.Error directly.
func (r Result[T]) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// OK reports whether the result is a success
func (r Result[T]) OK() bool {
	return r.Error == nil
}

// Total returns Count or -1 when the backend reported none
func (r Result[T]) Total() int64 {
	if r.Count == nil {
		return -1
	}
	return *r.Count
}
