package detect

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// RunningProcesses returns the lowercased names of currently running
// processes. On Linux it scans /proc; elsewhere it shells out to the
// platform process lister. Failures yield an empty set.
func RunningProcesses(ctx context.Context) map[string]bool {
	if runtime.GOOS == "linux" {
		if procs := scanProc(); len(procs) > 0 {
			return procs
		}
	}
	return listViaExec(ctx)
}

// IsRunning reports whether a process with the given name is running.
// Names match case-insensitively, with or without a ".exe" suffix, so a
// native Linux port matches its Windows process name from the registry.
func IsRunning(processes map[string]bool, name string) bool {
	lower := strings.ToLower(name)
	if processes[lower] {
		return true
	}
	if trimmed := strings.TrimSuffix(lower, ".exe"); trimmed != lower && processes[trimmed] {
		return true
	}
	return false
}

func scanProc() map[string]bool {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}
	processes := map[string]bool{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		dir := filepath.Join("/proc", strconv.Itoa(pid))
		if comm, err := os.ReadFile(filepath.Join(dir, "comm")); err == nil {
			if name := strings.ToLower(strings.TrimSpace(string(comm))); name != "" {
				processes[name] = true
			}
		}
		// comm truncates long names; argv[0] carries the full one.
		if cmdline, err := os.ReadFile(filepath.Join(dir, "cmdline")); err == nil {
			if arg0, _, _ := bytes.Cut(cmdline, []byte{0}); len(arg0) > 0 {
				name := strings.ToLower(filepath.Base(strings.ReplaceAll(string(arg0), `\`, "/")))
				if name != "" && name != "." {
					processes[name] = true
				}
			}
		}
	}
	return processes
}

func listViaExec(ctx context.Context) map[string]bool {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "tasklist", "/fo", "csv", "/nh")
	} else {
		cmd = exec.CommandContext(ctx, "ps", "-axco", "command")
	}
	out, err := cmd.Output()
	if err != nil {
		return map[string]bool{}
	}

	processes := map[string]bool{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if runtime.GOOS == "windows" {
			// CSV row: "name","pid",...
			line = strings.TrimPrefix(line, `"`)
			if idx := strings.Index(line, `"`); idx >= 0 {
				line = line[:idx]
			}
		}
		processes[strings.ToLower(line)] = true
	}
	return processes
}
