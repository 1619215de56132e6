// Package state persists and reloads the engine's runtime state file:
// the active mount-base path and storage mode as textual key=value
// lines, read back by the query subcommands.
package state

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// State is the persisted runtime state. RunID is an identifier minted
// fresh each engine pass, letting log lines from the same pass be
// correlated after the fact; it rides along in the same file as an
// additional key=value line.
type State struct {
	MountPoint  string
	StorageMode string
	RunID       string
}

// Write persists s to path as `key=value` lines.
func Write(path string, s State) error {
	data := fmt.Sprintf("mount_point=%s\nstorage_mode=%s\nrun_id=%s\n", s.MountPoint, s.StorageMode, s.RunID)
	return os.WriteFile(path, []byte(data), 0o644)
}

// Read loads the runtime state file written by Write.
func Read(path string) (State, error) {
	f, err := os.Open(path)
	if err != nil {
		return State{}, err
	}
	defer f.Close()

	var s State
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "mount_point":
			s.MountPoint = strings.TrimSpace(v)
		case "storage_mode":
			s.StorageMode = strings.TrimSpace(v)
		case "run_id":
			s.RunID = strings.TrimSpace(v)
		}
	}
	return s, sc.Err()
}
