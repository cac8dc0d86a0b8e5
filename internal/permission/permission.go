package permission

import "strings"

// Level orders the access grades a grant can carry.
type Level string

const (
	LevelRead  Level = "read"
	LevelWrite Level = "write"
	LevelAdmin Level = "admin"
)

// rank maps each level to its place in the ordering. Unknown levels rank
// below read and never satisfy a requirement.
var rank = map[Level]int{
	LevelRead:  1,
	LevelWrite: 2,
	LevelAdmin: 3,
}

// Satisfies reports whether a grant at this level covers the required one.
func (l Level) Satisfies(required Level) bool {
	have, ok := rank[l]
	if !ok {
		return false
	}
	need, ok := rank[required]
	if !ok {
		return false
	}
	return have >= need
}

// TargetType scopes a grant to the whole app or to a single connection.
type TargetType string

const (
	TargetApp        TargetType = "app"
	TargetConnection TargetType = "connection"
)

// Permission is one grant of a level on a target to a user.
type Permission struct {
	ID         string     `json:"id"`
	TargetType TargetType `json:"targetType"`
	TargetID   string     `json:"targetId"`
	Email      string     `json:"email"`
	Level      Level      `json:"level"`
}

// matches reports whether this grant applies to the given target and user.
// Emails compare case insensitively.
func (p Permission) matches(targetType TargetType, targetID, email string) bool {
	if p.TargetType != targetType {
		return false
	}
	if p.TargetID != targetID {
		return false
	}
	return strings.EqualFold(p.Email, email)
}

// Has reports whether any grant in the set gives the user at least the
// required level on the target.
func Has(perms []Permission, targetType TargetType, targetID, email string, required Level) bool {
	for _, p := range perms {
		if p.matches(targetType, targetID, email) && p.Level.Satisfies(required) {
			return true
		}
	}
	return false
}
