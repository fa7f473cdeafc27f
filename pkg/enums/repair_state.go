package enums

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// RepairState maps to the repair_state enum in Postgres.
type RepairState string

const (
	RepairStateInProgress RepairState = "in_progress"
	RepairStateCompleted  RepairState = "completed"
	RepairStateCancelled  RepairState = "cancelled"

	// Client tracking steps.
	RepairStateDeposited  RepairState = "deposited"
	RepairStateDiagnostic RepairState = "diagnostic"
	RepairStateRepairing  RepairState = "repairing"
	RepairStateTesting    RepairState = "testing"
)

var validRepairStates = []RepairState{
	RepairStateInProgress,
	RepairStateCompleted,
	RepairStateCancelled,
	RepairStateDeposited,
	RepairStateDiagnostic,
	RepairStateRepairing,
	RepairStateTesting,
}

var legacyRepairStates = map[string]RepairState{
	"en cours":   RepairStateInProgress,
	"terminée":   RepairStateCompleted,
	"terminee":   RepairStateCompleted,
	"termine":    RepairStateCompleted,
	"terminé":    RepairStateCompleted,
	"annulé":     RepairStateCancelled,
	"annule":     RepairStateCancelled,
	"depot":      RepairStateDeposited,
	"dépôt":      RepairStateDeposited,
	"diagnostic": RepairStateDiagnostic,
	"reparation": RepairStateRepairing,
	"réparation": RepairStateRepairing,
	"test":       RepairStateTesting,
}

// String implements fmt.Stringer.
func (s RepairState) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical repair_state enum.
func (s RepairState) IsValid() bool {
	for _, candidate := range validRepairStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the repair can no longer change state.
func (s RepairState) IsTerminal() bool {
	return s == RepairStateCompleted || s == RepairStateCancelled
}

// ParseRepairState converts canonical or legacy input into a RepairState.
func ParseRepairState(value string) (RepairState, error) {
	for _, candidate := range validRepairStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	if state, ok := legacyRepairStates[strings.ToLower(strings.TrimSpace(value))]; ok {
		return state, nil
	}
	return "", fmt.Errorf("invalid repair state %q", value)
}

// Value implements driver.Valuer. Only canonical values are written.
func (s RepairState) Value() (driver.Value, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid repair state %q", string(s))
	}
	return string(s), nil
}

// Scan implements sql.Scanner and normalizes rows still holding legacy literals.
func (s *RepairState) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into RepairState", src)
	}
	parsed, err := ParseRepairState(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
