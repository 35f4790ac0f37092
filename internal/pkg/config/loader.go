// Package config loads process settings from the environment with
// per-field fallback: a value that fails to parse or validate is replaced by
// its default and reported instead of stopping the process.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Result is the outcome of loading one value.
type Result[T any] struct {
	Value T
	// Warning describes the rejected input when FallbackApplied is true.
	Warning         string
	FallbackApplied bool
}

// LoadEnv reads key, parses it and validates it. An unset or empty variable
// yields def without a warning.
func LoadEnv[T any](key string, def T, parse func(string) (T, error), validate func(T) error) Result[T] {
	raw := os.Getenv(key)
	if raw == "" {
		return Result[T]{Value: def}
	}

	v, err := parse(raw)
	if err == nil && validate != nil {
		err = validate(v)
	}
	if err != nil {
		return Result[T]{
			Value:           def,
			Warning:         fmt.Sprintf("invalid %s=%q: %v, falling back to default %v", key, raw, err, def),
			FallbackApplied: true,
		}
	}
	return Result[T]{Value: v}
}

// LoadEnvString loads a string. validate may be nil.
func LoadEnvString(key, def string, validate func(string) error) Result[string] {
	return LoadEnv(key, def, func(s string) (string, error) { return s, nil }, validate)
}

// LoadEnvDuration loads a time.ParseDuration value.
func LoadEnvDuration(key string, def time.Duration, validate func(time.Duration) error) Result[time.Duration] {
	return LoadEnv(key, def, time.ParseDuration, validate)
}

// LoadEnvInt loads a base-10 integer.
func LoadEnvInt(key string, def int, validate func(int) error) Result[int] {
	return LoadEnv(key, def, strconv.Atoi, validate)
}

// LoadEnvBool loads a strconv.ParseBool value.
func LoadEnvBool(key string, def bool) Result[bool] {
	return LoadEnv(key, def, strconv.ParseBool, nil)
}
