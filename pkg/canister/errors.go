// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package canister

import (
	"errors"
	"fmt"
)

// Reject codes returned by the canister.
const (
	CodeInvalidArgument = "invalid_argument"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeInternal        = "internal"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid argument")
)

// RemoteError is a call rejected by the canister.
type RemoteError struct {
	Method  string `cbor:"-"`
	Status  int    `cbor:"-"`
	Code    string `cbor:"code"`
	Message string `cbor:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s rejected (%d %s): %s", e.Method, e.Status, e.Code, e.Message)
}

// Is maps reject codes onto the package sentinels.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == CodeNotFound
	case ErrConflict:
		return e.Code == CodeConflict
	case ErrInvalidArgument:
		return e.Code == CodeInvalidArgument
	}
	return false
}

// Reject builds a RemoteError for a canister-side failure.
func Reject(code, format string, args ...any) *RemoteError {
	return &RemoteError{Code: code, Message: fmt.Sprintf(format, args...)}
}
