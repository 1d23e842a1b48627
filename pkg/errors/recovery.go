package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError は recover したパニックから作られたエラーです。
// 元のパニック値とその時点のスタックトレースを保持します。
type PanicError struct {
	// PanicValue is the original value passed to panic()
	PanicValue interface{}

	// StackTrace contains the stack trace at the time of panic
	StackTrace string

	// Operation identifies where the panic was recovered
	Operation string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// String はスタックトレースを含む詳細表現を返します。
func (e *PanicError) String() string {
	return fmt.Sprintf("panic in %s: %v\nStack trace:\n%s",
		e.Operation, e.PanicValue, e.StackTrace)
}

// NewPanicError は操作名とパニック値から PanicError を作成します。
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Operation:  operation,
	}
}

// Recover は defer と組み合わせてパニックをエラーに変換します。
//
//	func (m *Model) Fit(X, y mat.Matrix) (err error) {
//	    defer Recover(&err, "Model.Fit")
//	    ...
//	}
//
// 既にエラーが設定されている場合は元のエラーを保持したままラップします。
func Recover(err *error, operation string) {
	if r := recover(); r != nil {
		if *err != nil {
			*err = fmt.Errorf("panic in %s: %v (original error: %w)", operation, r, *err)
			return
		}
		*err = NewPanicError(operation, r)
	}
}

// SafeExecute は fn を実行し、パニックを PanicError として返します。
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}

// SafeCall は値を返す関数版の SafeExecute です。
// ワーカープール内の学習タスクはこれを通して実行されます。
func SafeCall[T any](operation string, fn func() (T, error)) (v T, err error) {
	defer Recover(&err, operation)
	return fn()
}
