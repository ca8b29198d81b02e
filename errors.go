package evconsole

import (
	"errors"
	"fmt"
)

var (
	// ErrNotCallable 命令未绑定可执行实现。
	ErrNotCallable = errors.New("not callable")
	// ErrNilListener 注册了空监听器。
	ErrNilListener = errors.New("listener is nil")
)

// NotCallableError 调用未绑定的命令，或 AddCommand 传入 nil 时返回。
type NotCallableError struct {
	Command string
}

func (e *NotCallableError) Error() string {
	return fmt.Sprintf("command %q is not callable", e.Command)
}

func (e *NotCallableError) Unwrap() error { return ErrNotCallable }
