package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/lmapd/lmapd/internal/workspace/meta"
)

// Invocation is the neutral, report-agnostic view of one completed (or
// crashed mid-run) Action invocation: a parsed ".meta" sidecar plus the
// raw CSV rows of its twin ".data" file. internal/report turns this
// into its Result/Table/Row types; Invocation itself carries no report
// wire-format knowledge so the Workspace Manager never needs to import
// internal/report.
type Invocation struct {
	Meta *meta.Sidecar
	Rows [][]string
}

// ReadResults implements read-results(): it scans every Schedule
// directory (not "_incoming", and not the per-Action private
// workspaces, which only ever hold in-flight or not-yet-collected
// artefacts) for ".meta" files, parses each one together with its twin
// ".data" file, and returns one Invocation per pair found. A ".meta"
// with no matching ".data" still yields an Invocation with a nil Rows
// slice — an Action that produced no stdout rows is not an error.
func ReadResults(root string) ([]*Invocation, error) {
	scheduleDirs, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []*Invocation
	for _, sd := range scheduleDirs {
		// The report command may be pointed straight at a Schedule
		// directory (or any directory holding collected pairs), so
		// ".meta" files directly under root are read too.
		if !sd.IsDir() {
			if strings.HasSuffix(sd.Name(), ".meta") {
				inv, err := readInvocation(root, sd.Name())
				if err != nil {
					return out, err
				}
				out = append(out, inv)
			}
			continue
		}
		if strings.HasPrefix(sd.Name(), "_") {
			continue // _incoming holds not-yet-promoted pairs
		}
		dir := filepath.Join(root, sd.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			return out, err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".meta") {
				continue
			}
			inv, err := readInvocation(dir, e.Name())
			if err != nil {
				return out, err
			}
			out = append(out, inv)
		}
	}
	return out, nil
}

func readInvocation(dir, metaName string) (*Invocation, error) {
	metaFile, err := os.Open(filepath.Join(dir, metaName))
	if err != nil {
		return nil, err
	}
	defer metaFile.Close()

	sc, err := meta.Read(metaFile)
	if err != nil {
		return nil, err
	}

	inv := &Invocation{Meta: sc}

	dataName := strings.TrimSuffix(metaName, ".meta") + ".data"
	dataFile, err := os.Open(filepath.Join(dir, dataName))
	if err != nil {
		if os.IsNotExist(err) {
			return inv, nil
		}
		return nil, err
	}
	defer dataFile.Close()

	rows, err := meta.ReadRecords(dataFile)
	if err != nil {
		return nil, err
	}
	inv.Rows = rows
	return inv, nil
}
