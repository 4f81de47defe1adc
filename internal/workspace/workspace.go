// Package workspace owns the on-disk queue directory tree:
// per-Schedule directories, per-Action private workspaces, an
// "_incoming" staging area per Schedule, and the epoch-named ".data"/
// ".meta" artefact pairs that carry results from producing Actions to
// consuming Schedules.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lmapd/lmapd/internal/config"
)

// incomingDirName is the reserved staging directory name under each
// Schedule directory; SanitizeName never produces a leading "_", so this
// can never collide with a sanitized Schedule/Action name.
const incomingDirName = "_incoming"

// Manager owns one queue directory hierarchy rooted at Root.
type Manager struct {
	Root string
}

// New creates a Manager rooted at root. It does not touch the
// filesystem; call Init to create the directory tree.
func New(root string) *Manager {
	return &Manager{Root: root}
}

// ScheduleDir returns the processing-queue directory for schedule.
func (m *Manager) ScheduleDir(schedule string) string {
	return filepath.Join(m.Root, SanitizeName(schedule))
}

// ActionDir returns the private workspace directory for action.
func (m *Manager) ActionDir(schedule, action string) string {
	return filepath.Join(m.ScheduleDir(schedule), SanitizeName(action))
}

// IncomingDir returns the "_incoming" staging directory for schedule.
func (m *Manager) IncomingDir(schedule string) string {
	return filepath.Join(m.ScheduleDir(schedule), incomingDirName)
}

// ArtefactBaseName renders the "<epoch>-<schedule>-<action>" stem shared
// by a ".data"/".meta" pair, with schedule and action sanitized
// independently (the epoch and literal hyphens are never escaped).
func ArtefactBaseName(epoch int64, schedule, action string) string {
	return fmt.Sprintf("%d-%s-%s", epoch, SanitizeName(schedule), SanitizeName(action))
}

// DataPath and MetaPath return the full path to an invocation's ".data"
// / ".meta" artefact within dir (either a Schedule dir, an Action dir,
// or an "_incoming" dir, depending on the artefact's current stage).
func DataPath(dir string, epoch int64, schedule, action string) string {
	return filepath.Join(dir, ArtefactBaseName(epoch, schedule, action)+".data")
}

func MetaPath(dir string, epoch int64, schedule, action string) string {
	return filepath.Join(dir, ArtefactBaseName(epoch, schedule, action)+".meta")
}

// Init creates every Schedule directory, every Action subdirectory, and
// every "_incoming" staging directory named in cfg. EEXIST is not an
// error (mkdir -p semantics).
func (m *Manager) Init(cfg *config.Configuration) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, s := range cfg.Schedules {
		record(mkdirAll(m.ScheduleDir(s.Name)))
		record(mkdirAll(m.IncomingDir(s.Name)))
		for _, a := range s.Actions {
			record(mkdirAll(m.ActionDir(s.Name, a.Name)))
		}
	}
	return firstErr
}

func mkdirAll(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("workspace: mkdir %s: %w", path, err)
	}
	return nil
}

// CleanAll recursively removes everything under every per-Schedule
// directory (a post-order walk), continuing on partial failure and
// returning the last error seen.
func (m *Manager) CleanAll(cfg *config.Configuration) error {
	var lastErr error
	for _, s := range cfg.Schedules {
		entries, err := os.ReadDir(m.ScheduleDir(s.Name))
		if err != nil {
			if !os.IsNotExist(err) {
				lastErr = fmt.Errorf("workspace: read %s: %w", m.ScheduleDir(s.Name), err)
			}
			continue
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(m.ScheduleDir(s.Name), e.Name())); err != nil {
				lastErr = fmt.Errorf("workspace: remove %s: %w", e.Name(), err)
			}
		}
	}
	return lastErr
}

// ScheduleClean removes every regular file directly under the
// Schedule's directory (not subdirectories, and not names beginning
// with "_"), used after a run that fully consumed its input queue.
func (m *Manager) ScheduleClean(schedule string) error {
	dir := m.ScheduleDir(schedule)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("workspace: read %s: %w", dir, err)
	}
	var lastErr error
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			lastErr = fmt.Errorf("workspace: remove %s: %w", e.Name(), err)
		}
	}
	return lastErr
}

// ActionClean recursively removes everything under the Action's private
// workspace, used after its output has been linked to destinations.
func (m *Manager) ActionClean(schedule, action string) error {
	dir := m.ActionDir(schedule, action)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("workspace: read %s: %w", dir, err)
	}
	var lastErr error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			lastErr = fmt.Errorf("workspace: remove %s: %w", e.Name(), err)
		}
	}
	return lastErr
}

// OpenData and OpenMeta open the invocation's ".data"/".meta" file in
// the Action's private workspace at mode 0600.
func (m *Manager) OpenData(schedule, action string, epoch int64, flags int) (*os.File, error) {
	return openArtefact(DataPath(m.ActionDir(schedule, action), epoch, schedule, action), flags)
}

func (m *Manager) OpenMeta(schedule, action string, epoch int64, flags int) (*os.File, error) {
	return openArtefact(MetaPath(m.ActionDir(schedule, action), epoch, schedule, action), flags)
}

func openArtefact(path string, flags int) (*os.File, error) {
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("workspace: open %s: %w", path, err)
	}
	return f, nil
}

// isCompletePair reports whether both name.data and name.meta exist as
// regular files in dir.
func isCompletePair(dir, base string) bool {
	return isRegularFile(filepath.Join(dir, base+".data")) && isRegularFile(filepath.Join(dir, base+".meta"))
}

func isRegularFile(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().Type() == 0
}

// artefactBases returns the ".data"-file basenames (without extension)
// found directly in dir, skipping hidden entries (".", "..", and any
// name beginning with ".").
func artefactBases(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("workspace: read %s: %w", dir, err)
	}
	seen := make(map[string]bool)
	var bases []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		base, ok := strings.CutSuffix(name, ".data")
		if !ok {
			continue
		}
		if !seen[base] {
			seen[base] = true
			bases = append(bases, base)
		}
	}
	sort.Strings(bases)
	return bases, nil
}
