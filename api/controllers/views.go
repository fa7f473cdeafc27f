package controllers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastrepair/fastrepair-backend/internal/ledger"
	"github.com/fastrepair/fastrepair-backend/internal/repairs"
	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	"github.com/fastrepair/fastrepair-backend/pkg/enums"
)

// MovementView is the register entry as shown to the consoles.
type MovementView struct {
	ID            uuid.UUID          `json:"id"`
	CashAccountID uuid.UUID          `json:"cash_account_id"`
	TechnicianID  uuid.UUID          `json:"technician_id"`
	Kind          enums.MovementKind `json:"kind"`
	Label         string             `json:"label"`
	Amount        decimal.Decimal    `json:"amount"`
	Note          string             `json:"note"`
	OccurredAt    time.Time          `json:"occurred_at"`
	BalanceAfter  *decimal.Decimal   `json:"balance_after,omitempty"`
}

func newMovementView(m models.Movement) MovementView {
	return MovementView{
		ID:            m.ID,
		CashAccountID: m.CashAccountID,
		TechnicianID:  m.TechnicianID,
		Kind:          m.Kind,
		Label:         m.Kind.Label(),
		Amount:        m.Amount,
		Note:          m.Note,
		OccurredAt:    m.OccurredAt,
	}
}

func newMovementViews(rows []models.Movement) []MovementView {
	out := make([]MovementView, 0, len(rows))
	for _, row := range rows {
		out = append(out, newMovementView(row))
	}
	return out
}

func newLedgerViews(rows []ledger.MovementWithBalance) []MovementView {
	out := make([]MovementView, 0, len(rows))
	for _, row := range rows {
		view := newMovementView(row.Movement)
		balance := row.BalanceAfter
		view.BalanceAfter = &balance
		out = append(out, view)
	}
	return out
}

// MovementResultView answers a deposit or withdrawal.
type MovementResultView struct {
	Movement MovementView    `json:"movement"`
	Balance  decimal.Decimal `json:"balance"`
}

// CompletionView answers a repair completion.
type CompletionView struct {
	RepairID         uuid.UUID        `json:"repair_id"`
	Completed        bool             `json:"completed"`
	AlreadyCompleted bool             `json:"already_completed"`
	Credited         bool             `json:"credited"`
	CreditPending    bool             `json:"credit_pending"`
	Warning          string           `json:"warning,omitempty"`
	Movement         *MovementView    `json:"movement,omitempty"`
	Balance          *decimal.Decimal `json:"balance,omitempty"`
}

func newCompletionView(res *repairs.CompletionResult) CompletionView {
	view := CompletionView{
		RepairID:         res.RepairID,
		Completed:        res.Completed,
		AlreadyCompleted: res.AlreadyCompleted,
		Credited:         res.Credited,
		CreditPending:    res.CreditPending,
		Warning:          res.Warning,
		Balance:          res.Balance,
	}
	if res.Movement != nil {
		movement := newMovementView(*res.Movement)
		view.Movement = &movement
	}
	return view
}

// PendingCreditView is a dead-lettered repair credit awaiting an operator.
type PendingCreditView struct {
	ID         uuid.UUID                  `json:"id"`
	EventID    uuid.UUID                  `json:"event_id"`
	RepairID   uuid.UUID                  `json:"repair_id"`
	Reason     enums.OutboxDLQErrorReason `json:"reason"`
	Message    string                     `json:"message,omitempty"`
	Attempts   int                        `json:"attempts"`
	Payload    json.RawMessage            `json:"payload"`
	FailedAt   time.Time                  `json:"failed_at"`
	ResolvedAt *time.Time                 `json:"resolved_at,omitempty"`
	ResolvedBy *uuid.UUID                 `json:"resolved_by,omitempty"`
}

func newPendingCreditView(row models.OutboxDLQ) PendingCreditView {
	view := PendingCreditView{
		ID:         row.ID,
		EventID:    row.EventID,
		RepairID:   row.AggregateID,
		Reason:     row.ErrorReason,
		Attempts:   row.AttemptCount,
		Payload:    row.Payload,
		FailedAt:   row.FailedAt,
		ResolvedAt: row.ResolvedAt,
		ResolvedBy: row.ResolvedBy,
	}
	if row.ErrorMessage != nil {
		view.Message = *row.ErrorMessage
	}
	return view
}
