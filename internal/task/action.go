package task

import (
	"fmt"
	"strings"
)

// ActionType is the closed set of panel actions a schedule can trigger.
type ActionType string

const (
	ActionArm    ActionType = "ARM_SYSTEM"
	ActionDisarm ActionType = "DISARM_SYSTEM"
)

func (a ActionType) Valid() bool { return a == ActionArm || a == ActionDisarm }

func (a ActionType) String() string { return string(a) }

// ParseActionType accepts the canonical constant names, case-insensitively.
func ParseActionType(s string) (ActionType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(ActionArm):
		return ActionArm, true
	case string(ActionDisarm):
		return ActionDisarm, true
	default:
		return "", false
	}
}

// ArmMode selects how the panel arms: full perimeter+interior ("away")
// or perimeter only ("stay").
type ArmMode string

const (
	ModeAway ArmMode = "away"
	ModeStay ArmMode = "stay"
)

func (m ArmMode) Valid() bool { return m == ModeAway || m == ModeStay }

// ActionParams carries the per-action parameters.
//
// Schema by action type:
//   - ARM_SYSTEM: Mode required (away|stay), ZoneIDs optional
//   - DISARM_SYSTEM: ZoneIDs optional, Mode must be empty
type ActionParams struct {
	Mode    ArmMode  `json:"mode,omitempty"`
	ZoneIDs []string `json:"zone_ids,omitempty"`
}

// ValidateFor checks p against the schema for the given action type.
func (p ActionParams) ValidateFor(action ActionType) error {
	switch action {
	case ActionArm:
		if !p.Mode.Valid() {
			return fmt.Errorf("action parameters: mode must be %q or %q (got %q)", ModeAway, ModeStay, p.Mode)
		}
	case ActionDisarm:
		if p.Mode != "" {
			return fmt.Errorf("action parameters: mode is not allowed for %s", ActionDisarm)
		}
	default:
		return fmt.Errorf("unknown action type %q", action)
	}
	for _, z := range p.ZoneIDs {
		if strings.TrimSpace(z) == "" {
			return fmt.Errorf("action parameters: zone ids must be non-empty")
		}
	}
	return nil
}
