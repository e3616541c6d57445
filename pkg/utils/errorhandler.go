package utils

import (
	"fmt"
	"runtime"
)

// WrapError annotates an error with the caller's file and line so log
// records point at the failing call site.
func WrapError(err error) error {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		return err
	}
	return fmt.Errorf("error at %s:%d: %v", file, line, err)
}
