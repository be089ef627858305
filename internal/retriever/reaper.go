package retriever

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/patchline-watcher/internal/logger"
)

// ReapStale kills retrieval tool processes orphaned by a previous run of the
// watcher. They would otherwise keep writing into the shared working directory
// while the next cycle uses it. Tool processes that still have a live parent
// belong to someone else and are left alone. It returns the number of killed processes.
func ReapStale(ctx context.Context, launcher Launcher) (int, error) {
	name := filepath.Base(launcher.Executable())

	processList, err := ps.Processes()
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}

	killed := 0

	for _, pid := range orphanedTools(processList, name, os.Getpid()) {
		runningProcess, err := os.FindProcess(pid)
		if err != nil {
			return killed, fmt.Errorf("find process %d: %w", pid, err)
		}

		if err = runningProcess.Kill(); err != nil {
			return killed, fmt.Errorf("kill process %d: %w", pid, err)
		}

		logger.WarnKV(ctx, "Killed leftover retrieval tool", "pid", pid, "executable", name)

		killed++
	}

	return killed, nil
}

// initProcessID is the parent that orphans are reparented to on Unix.
const initProcessID = 1

// orphanedTools returns the pids of processes named like the tool whose parent
// is gone: reparented to init, or, on Windows, pointing at a dead pid.
func orphanedTools(processList []ps.Process, name string, self int) []int {
	alive := make(map[int]struct{}, len(processList))
	for _, process := range processList {
		alive[process.Pid()] = struct{}{}
	}

	var pids []int

	for _, process := range processList {
		if process.Pid() == self || process.PPid() == self {
			continue
		}

		if !matchesExecutable(process.Executable(), name) {
			continue
		}

		parent := process.PPid()
		if _, ok := alive[parent]; ok && parent > initProcessID {
			continue
		}

		pids = append(pids, process.Pid())
	}

	return pids
}

// commLength is the length Linux truncates process names to.
const commLength = 15

// matchesExecutable compares a listed process name with the tool name,
// accepting the truncated form Linux reports for long names.
func matchesExecutable(processName, name string) bool {
	if strings.EqualFold(processName, name) {
		return true
	}

	return len(processName) == commLength && len(name) > commLength &&
		strings.EqualFold(processName, name[:commLength])
}
