package event

// RosterChange is the payload shared by roster-derived events.
type RosterChange struct {
	// Players is the full roster of the sample that produced the change.
	Players []string
	Current int
	Max     int
}

// PlayerJoin is published when a roster sample contains players the previous one lacked.
type PlayerJoin struct {
	baseSessionEvent
	RosterChange
	Joined []string
}

func NewPlayerJoin(source Peer, joined []string, change RosterChange) *PlayerJoin {
	return &PlayerJoin{
		baseSessionEvent: baseSessionEvent{source: source},
		RosterChange:     change,
		Joined:           joined,
	}
}

func (e *PlayerJoin) EventName() string {
	return NamePlayerJoin
}

// PlayerLeave is published when a roster sample lacks players the previous one had.
type PlayerLeave struct {
	baseSessionEvent
	RosterChange
	Left []string
}

func NewPlayerLeave(source Peer, left []string, change RosterChange) *PlayerLeave {
	return &PlayerLeave{
		baseSessionEvent: baseSessionEvent{source: source},
		RosterChange:     change,
		Left:             left,
	}
}

func (e *PlayerLeave) EventName() string {
	return NamePlayerLeave
}
