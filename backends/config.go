// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Options holds the "key=value" pairs of a backend configuration string, e.g. "gpus=2,memory=1GiB".
//
// Backends read the keys they know with the typed getters and call Unused to reject the rest.
type Options struct {
	values map[string]string
	used   map[string]bool
}

// ParseOptions parses a comma separated list of "key=value" (or just "key", meaning "key=true").
func ParseOptions(config string) (*Options, error) {
	opts := &Options{values: make(map[string]string), used: make(map[string]bool)}
	for part := range strings.SplitSeq(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, errors.Errorf("invalid backend option %q in %q", part, config)
		}
		if !found {
			value = "true"
		}
		opts.values[key] = strings.TrimSpace(value)
	}
	return opts, nil
}

func (o *Options) lookup(key string) (string, bool) {
	value, found := o.values[key]
	if found {
		o.used[key] = true
	}
	return value, found
}

// Int returns the integer value for key, or defaultValue if not set.
func (o *Options) Int(key string, defaultValue int) (int, error) {
	value, found := o.lookup(key)
	if !found {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(err, "backend option %q", key)
	}
	return v, nil
}

// Bytes returns a size in bytes for key (e.g.: "256MiB", "1GB", "4096"), or defaultValue if not set.
func (o *Options) Bytes(key string, defaultValue uint64) (uint64, error) {
	value, found := o.lookup(key)
	if !found {
		return defaultValue, nil
	}
	v, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, errors.Wrapf(err, "backend option %q", key)
	}
	return v, nil
}

// Duration returns a time.Duration for key (e.g.: "1ms"), or defaultValue if not set.
func (o *Options) Duration(key string, defaultValue time.Duration) (time.Duration, error) {
	value, found := o.lookup(key)
	if !found {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrapf(err, "backend option %q", key)
	}
	return v, nil
}

// Unused returns an error listing the keys that were never read, if any.
func (o *Options) Unused() error {
	var unused []string
	for key := range o.values {
		if !o.used[key] {
			unused = append(unused, key)
		}
	}
	if len(unused) > 0 {
		return errors.Errorf("unknown backend options %q", unused)
	}
	return nil
}
