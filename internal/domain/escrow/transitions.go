package escrow

// Party is a role an actor plays relative to a specific hold
type Party string

const (
	PartyPayer  Party = "payer"
	PartyAdmin  Party = "admin"
	PartySystem Party = "system"
)

// Transition is one legal edge of the hold lifecycle
type Transition struct {
	From    State
	To      State
	Allowed []Party
	Trigger string
}

var transitions = []Transition{
	{From: StateHeld, To: StateReleased, Allowed: []Party{PartyPayer, PartySystem}, Trigger: "delivery confirmed or auto-release deadline passed"},
	{From: StateHeld, To: StateDisputed, Allowed: []Party{PartyPayer}, Trigger: "dispute filed"},
	{From: StateDisputed, To: StateReleased, Allowed: []Party{PartyAdmin}, Trigger: "dispute resolved for merchant"},
	{From: StateDisputed, To: StateRefunded, Allowed: []Party{PartyAdmin}, Trigger: "dispute resolved for payer"},
}

// Transitions returns a copy of the legal transition table.
func Transitions() []Transition {
	out := make([]Transition, len(transitions))
	copy(out, transitions)
	return out
}

// LookupTransition finds the legal edge from -> to.
func LookupTransition(from, to State) (Transition, bool) {
	for _, t := range transitions {
		if t.From == from && t.To == to {
			return t, true
		}
	}
	return Transition{}, false
}

// CheckTransition validates moving h to the target state on behalf of actor.
// Legality is checked before authorization so an illegal edge always reports
// ErrInvalidTransition regardless of who asked.
func CheckTransition(h *Hold, to State, actor Actor) error {
	t, ok := LookupTransition(h.State, to)
	if !ok || !to.Valid() {
		return ErrInvalidTransition{HoldID: h.ID, From: h.State, To: to}
	}

	for _, p := range actor.parties(h) {
		for _, allowed := range t.Allowed {
			if p == allowed {
				return nil
			}
		}
	}

	return ErrForbidden{HoldID: h.ID, ActorID: actor.ID(), From: h.State, To: to}
}
