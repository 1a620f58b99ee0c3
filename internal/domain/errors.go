// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrPermissionDenied indicates an operation was rejected by the permission policy.
var ErrPermissionDenied = errors.New("permission denied")

// ErrValidation indicates invalid caller-supplied input.
var ErrValidation = errors.New("validation failed")
