package session

import "sync"

// continuityThreshold is how many consecutive sequence gaps are tolerated
// before a full status refresh is forced.
const continuityThreshold = 5

// safetyRefreshInterval (declared in session.go) is how often a full status
// refresh is requested even when continuity looks fine, as a defense against
// silent drift. (Driven by Session.safetyRefreshLoop, not the snapshot itself.)

// StatusSnapshot is the merge target for delta status updates: a tree
// mirroring the printer's full status, plus bookkeeping for sequence
// continuity and staleness.
type StatusSnapshot struct {
	mu sync.RWMutex

	Tree         map[string]any
	LastUpdateID int64
	Tainted      bool
	Stale        bool

	nonContinuousCount int
	inGapStreak        bool
	seenUnknownMethods map[int]struct{}
}

// NewStatusSnapshot creates an empty snapshot.
func NewStatusSnapshot() *StatusSnapshot {
	return &StatusSnapshot{
		Tree:               map[string]any{},
		seenUnknownMethods: map[int]struct{}{},
	}
}

// MergeResult reports what a Merge call decided.
type MergeResult struct {
	Applied            bool
	NeedsFullRefresh   bool
	NonContinuousCount int
}

// Merge deep-merges delta into the snapshot's tree, keyed by updateID.
// A regressing id (updateID <= LastUpdateID, when LastUpdateID > 0) is
// dropped: the snapshot never regresses. The first sequence gap opens a
// non-continuous streak; every update received while that streak is open
// counts toward continuityThreshold, even one that happens to be numerically
// consecutive with the id that caused the gap — an incidentally-consecutive
// frame does not mean the printer resynced, only that one more frame
// arrived. At continuityThreshold the caller is told to request a full
// refresh and the streak closes; ReplaceFull also closes it once that
// refresh lands.
func (s *StatusSnapshot) Merge(updateID int64, delta map[string]any) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.LastUpdateID > 0 && updateID <= s.LastUpdateID {
		return MergeResult{Applied: false, NonContinuousCount: s.nonContinuousCount}
	}

	expected := s.LastUpdateID + 1
	gapped := s.LastUpdateID > 0 && updateID != expected

	switch {
	case s.inGapStreak:
		s.nonContinuousCount++
	case gapped:
		s.inGapStreak = true
	default:
		s.nonContinuousCount = 0
	}

	deepMerge(s.Tree, delta)
	s.LastUpdateID = updateID
	s.Stale = false

	needsRefresh := s.nonContinuousCount >= continuityThreshold
	if needsRefresh {
		s.nonContinuousCount = 0
		s.inGapStreak = false
	}

	return MergeResult{Applied: true, NeedsFullRefresh: needsRefresh, NonContinuousCount: s.nonContinuousCount}
}

// ReplaceFull replaces the snapshot wholesale with a freshly fetched full
// status tree (the response to GET_STATUS), resetting continuity tracking.
func (s *StatusSnapshot) ReplaceFull(updateID int64, full map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tree = cloneMap(full)
	s.LastUpdateID = updateID
	s.nonContinuousCount = 0
	s.inGapStreak = false
	s.Tainted = false
	s.Stale = false
}

// MarkStale flags the snapshot as last-known-but-possibly-outdated, used
// when the transport drops and the session enters RECONNECTING.
func (s *StatusSnapshot) MarkStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stale = true
}

// MarkTainted flags the snapshot as internally inconsistent (e.g. PRINTING
// with no filename), signaling the caller should request a full refresh.
func (s *StatusSnapshot) MarkTainted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tainted = true
}

// Copy returns an immutable deep copy of the snapshot's current state,
// safe for a consumer to read without further synchronization.
func (s *StatusSnapshot) Copy() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatusSnapshot{
		Tree:         cloneMap(s.Tree),
		LastUpdateID: s.LastUpdateID,
		Tainted:      s.Tainted,
		Stale:        s.Stale,
	}
}

// NoteUnknownMethod records that a method code was seen on an inbound status
// frame with no known handling, returning true the first time it is seen in
// this session (callers log once per code per session).
func (s *StatusSnapshot) NoteUnknownMethod(method int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.seenUnknownMethods[method]; seen {
		return false
	}
	s.seenUnknownMethods[method] = struct{}{}
	return true
}

// MachineStatus reads the top-level "machineStatus" field, if present.
func (s *StatusSnapshot) MachineStatus() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.Tree["machineStatus"].(string); ok {
		return v
	}
	return ""
}

// PrintFilename reads "print.filename", if present.
func (s *StatusSnapshot) PrintFilename() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if print, ok := s.Tree["print"].(map[string]any); ok {
		if v, ok := print["filename"].(string); ok {
			return v
		}
	}
	return ""
}

// TotalLayers reads "print.total_layer", accepting either "total_layer" or
// "TotalLayers" (firmware has used both field names across versions).
func (s *StatusSnapshot) TotalLayers() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	print, ok := s.Tree["print"].(map[string]any)
	if !ok {
		return 0
	}
	if v, ok := print["total_layer"].(float64); ok {
		return v
	}
	if v, ok := print["TotalLayers"].(float64); ok {
		return v
	}
	return 0
}

// SetTotalLayers writes "print.total_layer", used by the total-layer
// recovery path after a GET_FILE_DETAIL round trip.
func (s *StatusSnapshot) SetTotalLayers(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	print, ok := s.Tree["print"].(map[string]any)
	if !ok {
		print = map[string]any{}
		s.Tree["print"] = print
	}
	print["total_layer"] = v
}

// deepMerge recursively merges src into dst. Where both sides hold maps,
// the merge recurses; otherwise (scalars, arrays, or a type mismatch) the
// incoming value replaces the existing one wholesale. Arrays are always
// replaced, never element-merged.
func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		if !srcIsMap {
			dst[k] = v
			continue
		}
		dstMap, dstIsMap := dst[k].(map[string]any)
		if !dstIsMap {
			dst[k] = cloneMap(srcMap)
			continue
		}
		deepMerge(dstMap, srcMap)
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
