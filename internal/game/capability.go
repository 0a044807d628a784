package game

type Capability string

const (
	CapManageResults  Capability = "manage_results"
	CapManagePlayers  Capability = "manage_players"
	CapManageFixtures Capability = "manage_fixtures"
)

// CapabilitySet is passed explicitly into admin operations rather than
// read from ambient session state.
type CapabilitySet map[Capability]struct{}

func Capabilities(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}
