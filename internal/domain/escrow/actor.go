package escrow

import (
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// UserRole is the platform role supplied by the identity provider
type UserRole string

const (
	RoleEmployee UserRole = "employee"
	RoleAdmin    UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleEmployee || r == RoleAdmin
}

type actorKind int

const (
	actorKindNone actorKind = iota
	actorKindUser
	actorKindSystem
)

// Actor is either an authenticated user or the scheduler.
// The zero value is neither and is never authorized.
type Actor struct {
	kind actorKind
	id   string
	role UserRole
}

// UserActor builds an actor for an authenticated platform user.
func UserActor(id string, role UserRole) Actor {
	return Actor{kind: actorKindUser, id: id, role: role}
}

// SystemActor builds the reserved scheduler actor.
func SystemActor() Actor {
	return Actor{kind: actorKindSystem, id: shared.SystemActorID}
}

// ID is the value written to the audit trail.
func (a Actor) ID() string { return a.id }

// Role is empty for the system actor.
func (a Actor) Role() UserRole { return a.role }

func (a Actor) IsSystem() bool { return a.kind == actorKindSystem }

func (a Actor) IsUser() bool { return a.kind == actorKindUser && a.id != "" }

func (a Actor) String() string {
	switch a.kind {
	case actorKindSystem:
		return "system"
	case actorKindUser:
		return "user:" + a.id + ":" + string(a.role)
	default:
		return "anonymous"
	}
}

// parties returns every role a may play against h.
func (a Actor) parties(h *Hold) []Party {
	switch a.kind {
	case actorKindSystem:
		return []Party{PartySystem}
	case actorKindUser:
		var ps []Party
		if a.id != "" && a.id == h.PayerID {
			ps = append(ps, PartyPayer)
		}
		if a.role == RoleAdmin {
			ps = append(ps, PartyAdmin)
		}
		return ps
	default:
		return nil
	}
}
