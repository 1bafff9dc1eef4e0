// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"runtime"
)

// Semantic version of the application.
const (
	appMajor = 1
	appMinor = 0
	appPatch = 0
)

// version returns the application version as a properly formed string.
func version() string {
	return fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
}

// goVersion returns the version of the runtime the binary was built with.
func goVersion() string {
	return runtime.Version()
}
