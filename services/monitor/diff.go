package monitor

import (
	"sort"

	"omakase-monitor/lib/scrapers/omakase"
)

// SlotTracker keeps the most recent slot snapshot per restaurant slug and
// decides which slots count as new. Identity is (date, time) only: a
// price or seat-count change on a known slot is not news. The tracker is
// mutated only by the sequential cycle, it needs locking before any
// future parallelization of restaurants.
type SlotTracker struct {
	previous map[string]map[omakase.SlotKey]struct{}
}

func NewSlotTracker() *SlotTracker {
	return &SlotTracker{previous: map[string]map[omakase.SlotKey]struct{}{}}
}

// DetectNew returns current minus the previous snapshot, ordered by date
// then time, and replaces the snapshot wholesale. An empty current set
// clears the snapshot, so a slot that disappears and later reappears is
// reported as new again. The first sight of a slug reports everything.
func (t *SlotTracker) DetectNew(slug string, current []omakase.TimeSlot) []omakase.TimeSlot {
	prev := t.previous[slug]

	snapshot := make(map[omakase.SlotKey]struct{}, len(current))
	var fresh []omakase.TimeSlot
	for _, slot := range current {
		key := slot.Key()
		if _, dup := snapshot[key]; dup {
			continue
		}
		snapshot[key] = struct{}{}
		if _, seen := prev[key]; !seen {
			fresh = append(fresh, slot)
		}
	}
	t.previous[slug] = snapshot

	sort.Slice(fresh, func(i, j int) bool {
		if fresh[i].Date != fresh[j].Date {
			return fresh[i].Date < fresh[j].Date
		}
		return fresh[i].Time < fresh[j].Time
	})
	return fresh
}
