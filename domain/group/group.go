// Package group provides the group value type used to categorize schemas.
// Groups are owned outside the schema engine; only existence checks and
// display names are consumed here.
package group

import (
	"errors"
	"strings"
)

// Group is a flat tag that schemas may reference by GroupID.
type Group struct {
	GroupID   string `json:"groupId" bson:"groupId"`
	GroupName string `json:"groupName" bson:"groupName"`
}

// ErrInvalid is returned by Validate for a malformed group.
var ErrInvalid = errors.New("invalid group")

// Validate checks that g carries an id and a name.
func Validate(g Group) error {
	if strings.TrimSpace(g.GroupID) == "" {
		return errors.Join(ErrInvalid, errors.New("groupId is required"))
	}
	if strings.TrimSpace(g.GroupName) == "" {
		return errors.Join(ErrInvalid, errors.New("groupName is required"))
	}
	return nil
}

// DisplayName returns the name to show for g, falling back to its id.
func (g Group) DisplayName() string {
	if g.GroupName != "" {
		return g.GroupName
	}
	return g.GroupID
}
