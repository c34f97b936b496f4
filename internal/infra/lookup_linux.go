//go:build linux

package infra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

const procRoot = "/proc"

func platformLookup() (lookupFunc, error) {
	return procLookup(procRoot)
}

// procLookup walks a /proc style directory. root is injectable for tests.
func procLookup(root string) (lookupFunc, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("proc table not mounted: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("proc table %s is not a directory", root)
	}

	return func(ctx context.Context) ([]domain.ProcessRecord, error) {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", root, err)
		}

		var records []domain.ProcessRecord
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			pid, err := strconv.Atoi(e.Name())
			if err != nil || pid <= 0 {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			comm, err := os.ReadFile(filepath.Join(root, e.Name(), "comm"))
			if err != nil {
				continue // process may have exited
			}
			name := strings.TrimSpace(string(comm))

			command := name
			if exe, err := os.Readlink(filepath.Join(root, e.Name(), "exe")); err == nil && exe != "" {
				command = exe
			}

			records = append(records, domain.ProcessRecord{Name: name, PID: pid, Command: command})
		}
		return records, nil
	}, nil
}
