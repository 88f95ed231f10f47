package models

import (
	"fmt"
	"strings"
)

// ActorKind discriminates who performed a change.
type ActorKind string

const (
	ActorKindAdmin  ActorKind = "admin"
	ActorKindUser   ActorKind = "user"
	ActorKindSystem ActorKind = "system"
)

// Valid reports whether the kind is one of the known variants.
func (k ActorKind) Valid() bool {
	switch k {
	case ActorKindAdmin, ActorKindUser, ActorKindSystem:
		return true
	}
	return false
}

// Actor identifies the admin, user or system process responsible for a change.
// For system actors ID carries the process label (e.g. SCHEDULED_JOB).
type Actor struct {
	Kind        ActorKind `json:"kind"`
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName,omitempty"`
}

// AdminActor builds an administrator actor.
func AdminActor(id, displayName string) Actor {
	return Actor{Kind: ActorKindAdmin, ID: id, DisplayName: displayName}
}

// UserActor builds an end-user actor.
func UserActor(id, displayName string) Actor {
	return Actor{Kind: ActorKindUser, ID: id, DisplayName: displayName}
}

// SystemActor builds an actor for automated processes.
func SystemActor(label string) Actor {
	return Actor{Kind: ActorKindSystem, ID: label, DisplayName: label}
}

// Key renders the actor as "kind:id", the form used by allowlists and alert references.
func (a Actor) Key() string {
	return fmt.Sprintf("%s:%s", a.Kind, a.ID)
}

// Validate ensures the actor was fully resolved at the boundary.
func (a Actor) Validate() error {
	if !a.Kind.Valid() {
		return fmt.Errorf("unknown actor kind %q", a.Kind)
	}
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("actor id is required")
	}
	return nil
}

// ParseActorKey reverses Key. A bare kind yields an empty id.
func ParseActorKey(raw string) (Actor, error) {
	kind, id, _ := strings.Cut(strings.TrimSpace(raw), ":")
	actor := Actor{Kind: ActorKind(strings.ToLower(kind)), ID: id}
	if !actor.Kind.Valid() {
		return Actor{}, fmt.Errorf("unknown actor kind %q", kind)
	}
	return actor, nil
}
