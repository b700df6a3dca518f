// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package _default includes the default backends, namely SimpleGo ("go") and the emulated devices ("simgpu").
//
// To use it simply include:
//
//	import _ "github.com/gomlx/hetero/backends/default"
//
// SimpleGo is registered first, so it's the default when no backend name is given.
package _default

import (
	_ "github.com/gomlx/hetero/backends/simgpu"
	_ "github.com/gomlx/hetero/backends/simplego"
)
