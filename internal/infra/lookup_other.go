//go:build !linux && !windows

package infra

import (
	"fmt"
	"runtime"
)

func platformLookup() (lookupFunc, error) {
	return nil, fmt.Errorf("no process lookup service on %s", runtime.GOOS)
}
