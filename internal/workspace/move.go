package workspace

import (
	"fmt"

	"github.com/lmapd/lmapd/internal/config"
)

// ScheduleMove promotes every complete (.data+.meta) pair staged in
// schedule's "_incoming" directory into the Schedule directory proper,
// then removes the staged originals. Each pair is linked atomically: if
// linking the ".meta" half fails after the ".data" half succeeded, the
// partial ".data" link is rolled back so the Schedule directory never
// exposes an orphaned half of a pair.
func (m *Manager) ScheduleMove(schedule string) error {
	incoming := m.IncomingDir(schedule)
	dest := m.ScheduleDir(schedule)

	bases, err := artefactBases(incoming)
	if err != nil {
		return err
	}

	var lastErr error
	for _, base := range bases {
		if !isCompletePair(incoming, base) {
			continue // still being written by action-meta-add-end
		}
		if err := movePair(incoming, dest, base); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// movePair hardlinks base's ".data" and ".meta" files from src to dst
// and then unlinks both originals from src.
func movePair(src, dst, base string) error {
	dataName, metaName := base+".data", base+".meta"

	if err := linkFile(src, dataName, dst, dataName); err != nil {
		return err
	}
	if err := linkFile(src, metaName, dst, metaName); err != nil {
		_ = unlinkFile(dst, dataName)
		return err
	}
	if err := unlinkFile(src, dataName); err != nil {
		return fmt.Errorf("workspace: unlink staged %s: %w", dataName, err)
	}
	if err := unlinkFile(src, metaName); err != nil {
		return fmt.Errorf("workspace: unlink staged %s: %w", metaName, err)
	}
	return nil
}

// ActionMove links an Action's completed (.data+.meta) artefact pair
// from its private workspace into a destination Schedule's queue. When
// toSchedule is the Action's own owning Schedule, the pair is linked
// directly into the Schedule directory, bypassing "_incoming" (the
// owning Schedule already waited for the Action to finish, so there is
// no concurrent-read race to guard against). For every other
// destination Schedule, the pair lands in that Schedule's "_incoming"
// staging directory and is promoted by that Schedule's own
// ScheduleMove on its next run.
func (m *Manager) ActionMove(fromSchedule, fromAction, toSchedule string, epoch int64) error {
	src := m.ActionDir(fromSchedule, fromAction)
	base := ArtefactBaseName(epoch, fromSchedule, fromAction)

	dst := m.IncomingDir(toSchedule)
	if toSchedule == fromSchedule {
		dst = m.ScheduleDir(toSchedule)
	}

	return movePairKeepSource(src, dst, base)
}

// movePairKeepSource is movePair without removing the Action's own
// copy: the Action workspace is the source of truth until ActionClean
// runs, since the same result may feed more than one destination
// Schedule (one result may feed several destination Schedules).
func movePairKeepSource(src, dst, base string) error {
	dataName, metaName := base+".data", base+".meta"
	if err := linkFile(src, dataName, dst, dataName); err != nil {
		return err
	}
	if err := linkFile(src, metaName, dst, metaName); err != nil {
		_ = unlinkFile(dst, dataName)
		return err
	}
	return nil
}

// StorageBytes reports the total bytes occupied by every queue
// directory named in cfg.
func (m *Manager) StorageBytes(cfg *config.Configuration) (int64, error) {
	var total int64
	for _, s := range cfg.Schedules {
		n, err := diskUsage(m.ScheduleDir(s.Name))
		if err != nil {
			return total, err
		}
		// The Schedule's directory holds its Action directories, and
		// diskUsage descends into them, so they are already counted.
		total += n
	}
	return total, nil
}

// UpdateStorage implements workspace-update(): it walks every Schedule
// and every Action, summing block usage of the files under each queue
// directory into the entity's StorageBytes runtime field. A failing
// directory is skipped rather than aborting the walk; the last error is
// returned after the remainder has been updated.
func (m *Manager) UpdateStorage(cfg *config.Configuration) error {
	var lastErr error
	for _, s := range cfg.Schedules {
		n, err := diskUsage(m.ScheduleDir(s.Name))
		if err != nil {
			lastErr = err
			continue
		}
		s.StorageBytes = uint64(n)
		for _, a := range s.Actions {
			n, err := diskUsage(m.ActionDir(s.Name, a.Name))
			if err != nil {
				lastErr = err
				continue
			}
			a.StorageBytes = uint64(n)
		}
	}
	return lastErr
}
