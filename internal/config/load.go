package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dario.cat/mergo"
	"github.com/adrg/xdg"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// DefaultConfigDir, DefaultQueueDir and DefaultRunDir resolve via XDG
// base directories when a daemon flag doesn't override them.
func DefaultConfigDir() string { return filepath.Join(xdg.ConfigHome, "lmapd") }
func DefaultQueueDir() string  { return filepath.Join(xdg.DataHome, "lmapd", "queue") }
func DefaultRunDir() string    { return filepath.Join(xdg.RuntimeDir, "lmapd") }

// LoadDotEnv optionally loads a ".env" file beside path (or path itself,
// if it is a file named ".env") into the process environment, for
// secrets-free LMAPD_* overrides. A missing .env is not an error.
func LoadDotEnv(path string) {
	dir := path
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		dir = filepath.Dir(path)
	}
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err != nil {
		return
	}
	_ = godotenv.Load(envPath)
}

// Load reads one or more configuration sources. Each path may be a
// single file (XML or JSON, auto-detected) or a directory, in which case
// every "*.xml" child is read in lexical os.ReadDir order (the Go
// equivalent of "readdir order") and folded together: Events/Tasks/
// Schedules/Suppressions/Capability accumulate across files via
// mergo.WithAppendSlice, while later files may override Agent scalar
// fields. The result is not validated; call Validate separately.
func Load(paths ...string) (*Configuration, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("config: no paths given")
	}

	merged := &Configuration{}
	haveAny := false

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("config: stat %s: %w", p, err)
		}

		var files []string
		if info.IsDir() {
			entries, err := os.ReadDir(p)
			if err != nil {
				return nil, fmt.Errorf("config: read dir %s: %w", p, err)
			}
			var names []string
			for _, e := range entries {
				if !e.IsDir() && strings.HasSuffix(e.Name(), ".xml") {
					names = append(names, e.Name())
				}
			}
			sort.Strings(names)
			for _, n := range names {
				files = append(files, filepath.Join(p, n))
			}
		} else {
			files = []string{p}
		}

		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("config: read %s: %w", f, err)
			}
			frag, err := parseFragment(data)
			if err != nil {
				return nil, fmt.Errorf("config: %s: %w", f, err)
			}
			if err := mergo.Merge(merged, frag, mergo.WithAppendSlice, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("config: merge %s: %w", f, err)
			}
			haveAny = true
		}
	}

	if !haveAny {
		return nil, fmt.Errorf("config: no configuration files found in %v", paths)
	}

	if merged.Agent.AgentID == "" {
		merged.Agent.AgentID = uuid.NewString()
	}
	return merged, nil
}

func parseFragment(data []byte) (*Configuration, error) {
	if looksLikeJSON(data) {
		return ParseJSON(data)
	}
	return ParseXML(data)
}
