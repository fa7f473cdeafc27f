package enums

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// MovementKind maps to the movement_kind enum in Postgres.
type MovementKind string

const (
	MovementKindDeposit    MovementKind = "deposit"
	MovementKindWithdrawal MovementKind = "withdrawal"
)

var validMovementKinds = []MovementKind{
	MovementKindDeposit,
	MovementKindWithdrawal,
}

// legacyMovementKinds maps the literals written by the desktop client onto the
// canonical kinds. "Prêt" (loan) always took money out of the register.
var legacyMovementKinds = map[string]MovementKind{
	"ajout de fonds":   MovementKindDeposit,
	"dépôt":            MovementKindDeposit,
	"depot":            MovementKindDeposit,
	"retrait de fonds": MovementKindWithdrawal,
	"prêt":             MovementKindWithdrawal,
	"pret":             MovementKindWithdrawal,
}

var movementKindLabels = map[MovementKind]string{
	MovementKindDeposit:    "Ajout de fonds",
	MovementKindWithdrawal: "Retrait de fonds",
}

// String implements fmt.Stringer.
func (k MovementKind) String() string {
	return string(k)
}

// IsValid reports whether the value matches the canonical movement_kind enum.
func (k MovementKind) IsValid() bool {
	for _, candidate := range validMovementKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// Label returns the register display label.
func (k MovementKind) Label() string {
	return movementKindLabels[k]
}

// ParseMovementKind converts canonical or legacy input into a MovementKind.
func ParseMovementKind(value string) (MovementKind, error) {
	for _, candidate := range validMovementKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	if kind, ok := legacyMovementKinds[strings.ToLower(strings.TrimSpace(value))]; ok {
		return kind, nil
	}
	return "", fmt.Errorf("invalid movement kind %q", value)
}

// Value implements driver.Valuer. Only canonical values are written.
func (k MovementKind) Value() (driver.Value, error) {
	if !k.IsValid() {
		return nil, fmt.Errorf("invalid movement kind %q", string(k))
	}
	return string(k), nil
}

// Scan implements sql.Scanner and normalizes rows still holding legacy literals.
func (k *MovementKind) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into MovementKind", src)
	}
	parsed, err := ParseMovementKind(raw)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
