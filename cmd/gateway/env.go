package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// envPrefix namespaces every environment variable the gateway reads.
const envPrefix = "GATEWAY_"

// flagEnv supplies command line flag defaults from GATEWAY_* variables.
// Values that fail to parse fall back to the default and are reported by
// err.
type flagEnv struct {
	lookup  func(string) (string, bool)
	invalid []error
}

func newFlagEnv(lookup func(string) (string, bool)) *flagEnv {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &flagEnv{lookup: lookup}
}

func (e *flagEnv) get(name string) (string, bool) {
	v, ok := e.lookup(envPrefix + name)
	return v, ok && v != ""
}

func (e *flagEnv) stringOr(name, def string) string {
	if v, ok := e.get(name); ok {
		return v
	}
	return def
}

func (e *flagEnv) boolOr(name string, def bool) bool {
	v, ok := e.get(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.invalid = append(e.invalid, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		return def
	}
	return b
}

func (e *flagEnv) err() error {
	return errors.Join(e.invalid...)
}
