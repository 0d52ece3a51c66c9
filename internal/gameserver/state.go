package gameserver

import "fmt"

// StateKind tags where a session stands relative to the archive.
type StateKind int

const (
	// Fresh parks have never been archived; the next save creates a row.
	Fresh StateKind = iota
	// PendingLoad waits for the game server to restore an archived park.
	PendingLoad
	// Bound parks map to an existing archive row.
	Bound
)

func (k StateKind) String() string {
	switch k {
	case Fresh:
		return "fresh"
	case PendingLoad:
		return "pending_load"
	case Bound:
		return "bound"
	default:
		return fmt.Sprintf("state(%d)", int(k))
	}
}

// LoadRequest names an archived save the server should restore next.
// ID is the archive row the save belongs to, or nil when unknown.
type LoadRequest struct {
	File string `json:"file"`
	ID   *int64 `json:"id"`
}

// ParkState is the session's archive identity. ID is set only when Kind is
// Bound; Load only when Kind is PendingLoad.
type ParkState struct {
	Kind StateKind
	ID   int64
	Load LoadRequest
}

func FreshState() ParkState {
	return ParkState{Kind: Fresh}
}

func BoundState(id int64) ParkState {
	return ParkState{Kind: Bound, ID: id}
}

func PendingLoadState(req LoadRequest) ParkState {
	return ParkState{Kind: PendingLoad, Load: req}
}

// ArchiveID returns the bound archive id, or nil for fresh and pending parks.
func (s ParkState) ArchiveID() *int64 {
	if s.Kind != Bound {
		return nil
	}
	id := s.ID
	return &id
}

// resolve is the state a new park starts in: a pending load becomes bound
// to its archive row, everything else starts fresh.
func (s ParkState) resolve() ParkState {
	if s.Kind == PendingLoad && s.Load.ID != nil && *s.Load.ID >= 0 {
		return BoundState(*s.Load.ID)
	}
	return FreshState()
}

func (s ParkState) same(o ParkState) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case Bound:
		return s.ID == o.ID
	case PendingLoad:
		return s.Load.File == o.Load.File
	}
	return true
}

// ParkRef is a snapshot of a session's park taken by Session.Ref.
type ParkRef struct {
	park  uint64
	state ParkState
}

func (r ParkRef) ArchiveID() *int64 {
	return r.state.ArchiveID()
}
