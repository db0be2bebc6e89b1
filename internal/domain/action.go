package domain

import (
	"fmt"
	"strings"
)

type DatabaseAction int

const (
	ActionUnknown DatabaseAction = iota
	ActionInsert
	ActionUpdate
	ActionDelete
)

func (a DatabaseAction) String() string {
	switch a {
	case ActionInsert:
		return "INSERT"
	case ActionUpdate:
		return "UPDATE"
	case ActionDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// ParseAction accepts the upstream MONGO_* spellings as well as the bare names.
func ParseAction(s string) (DatabaseAction, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "MONGO_")

	switch name {
	case "INSERT":
		return ActionInsert, nil
	case "UPDATE":
		return ActionUpdate, nil
	case "DELETE":
		return ActionDelete, nil
	default:
		return ActionUnknown, fmt.Errorf("unrecognised database action %q", s)
	}
}
