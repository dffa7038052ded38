package db

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
	ErrIndexExists = errors.New("db: index already exists")
)

// Op constants map to Redis command names for error context.
const (
	OpCreateIndex = "FT.CREATE"
	OpSearch      = "FT.SEARCH"
	OpDel         = "DEL"
	OpHDel        = "HDEL"
	OpHKeys       = "HKEYS"
	OpHMGet       = "HMGET"
	OpHSet        = "HSET"
	OpGet         = "GET"
	OpSet         = "SET"
	OpJSONSet     = "JSON.SET"
	OpJSONGet     = "JSON.GET"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// BatchError reports which keys of a pipelined write failed. Keys not listed succeeded.
type BatchError struct {
	Op     string
	Failed map[string]error
}

func (e *BatchError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Failed))
	return fmt.Sprintf("%s: %d key(s) failed, first %s: %v", e.Op, len(keys), keys[0], e.Failed[keys[0]])
}

// Unwrap exposes every per-key cause.
func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, k := range slices.Sorted(maps.Keys(e.Failed)) {
		out = append(out, e.Failed[k])
	}
	return out
}

// FailedKeys returns the failed keys of a BatchError, or nil for any other error.
func FailedKeys(err error) []string {
	var be *BatchError
	if errors.As(err, &be) {
		return slices.Sorted(maps.Keys(be.Failed))
	}
	return nil
}
