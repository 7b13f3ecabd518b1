package domain

import (
	"github.com/google/uuid"
)

// Group is the directory view of a chat group with its current members
type Group struct {
	GroupID   uuid.UUID   `json:"groupId" db:"group_id"`
	Name      string      `json:"name" db:"name"`
	MemberIDs []uuid.UUID `json:"memberIds"`
}

// IsMember reports whether userID belongs to the group
func (g *Group) IsMember(userID uuid.UUID) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
