/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"fmt"
	"strings"
)

// ActionType tags the variant of an Action.
type ActionType string

const (
	ActionDeleteFile        ActionType = "DELETE_FILE"
	ActionMoveTo            ActionType = "MOVE_TO"
	ActionAddTag            ActionType = "ADD_TAG"
	ActionRemoveTag         ActionType = "REMOVE_TAG"
	ActionNotify            ActionType = "NOTIFY"
	ActionLog               ActionType = "LOG"
	ActionRemoveFromManager ActionType = "REMOVE_FROM_MANAGER"
	ActionAddToExclusion    ActionType = "ADD_TO_EXCLUSION"
)

// Action is what a matching rule asks for. Only the fields of the selected
// variant are meaningful: Tag for ADD_TAG/REMOVE_TAG, Destination for
// MOVE_TO, Message for NOTIFY/LOG, Level for LOG, Reason for ADD_TO_EXCLUSION.
type Action struct {
	Type        ActionType `json:"type" yaml:"type"`
	Tag         string     `json:"tag,omitempty" yaml:"tag,omitempty"`
	Destination string     `json:"destination,omitempty" yaml:"destination,omitempty"`
	Message     string     `json:"message,omitempty" yaml:"message,omitempty"`
	Level       string     `json:"level,omitempty" yaml:"level,omitempty"`
	Reason      string     `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// IsDeleteClass reports whether the action asks for the item to be removed.
func (a Action) IsDeleteClass() bool {
	return a.Type == ActionDeleteFile || a.Type == ActionRemoveFromManager
}

var logLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}

func (a Action) validate() []string {
	switch a.Type {
	case ActionDeleteFile, ActionRemoveFromManager, ActionAddToExclusion:
		return nil
	case ActionAddTag, ActionRemoveTag:
		if strings.TrimSpace(a.Tag) == "" {
			return []string{fmt.Sprintf("%s needs a tag", a.Type)}
		}
	case ActionMoveTo:
		if strings.TrimSpace(a.Destination) == "" {
			return []string{"MOVE_TO needs a destination"}
		}
	case ActionNotify:
		if strings.TrimSpace(a.Message) == "" {
			return []string{"NOTIFY needs a message"}
		}
	case ActionLog:
		if strings.TrimSpace(a.Message) == "" {
			return []string{"LOG needs a message"}
		}
		if !logLevels[strings.ToLower(a.Level)] {
			return []string{fmt.Sprintf("unknown log level %q", a.Level)}
		}
	default:
		return []string{fmt.Sprintf("unknown action type %q", a.Type)}
	}
	return nil
}
