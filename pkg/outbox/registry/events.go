package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	"github.com/fastrepair/fastrepair-backend/pkg/enums"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox/payloads"
)

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Envelope outbox.PayloadEnvelope
	Payload  interface{}
}

// NonRetryableError signals the row can never be processed as stored.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// EventRegistry validates outbox rows and decodes their payloads by version.
type EventRegistry struct {
	aggregates map[enums.OutboxEventType]enums.OutboxAggregateType
	decoders   *DecoderRegistry
}

// NewEventRegistry registers every event the ledger consumes.
func NewEventRegistry() *EventRegistry {
	reg := &EventRegistry{
		aggregates: map[enums.OutboxEventType]enums.OutboxAggregateType{},
		decoders:   NewDecoderRegistry(),
	}
	reg.aggregates[enums.EventRepairCreditRequested] = enums.AggregateRepair
	RegisterJSON(reg.decoders, enums.EventRepairCreditRequested, payloads.RepairCreditRequestedVersion, func(p *payloads.RepairCreditRequested) error {
		if p.RepairID == uuid.Nil || p.ShopID == uuid.Nil {
			return fmt.Errorf("repair and shop ids are required")
		}
		if p.Amount.IsNegative() {
			return fmt.Errorf("credit amount cannot be negative")
		}
		return nil
	})
	return reg
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	aggregate, ok := r.aggregates[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if aggregate != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", aggregate, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload, err := r.decoders.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{Envelope: envelope, Payload: payload}, nil
}

// ResolveRepairCredit resolves the row and asserts the repair credit payload.
func (r *EventRegistry) ResolveRepairCredit(event models.OutboxEvent) (*payloads.RepairCreditRequested, error) {
	resolved, err := r.Resolve(event)
	if err != nil {
		return nil, err
	}
	payload, ok := resolved.Payload.(*payloads.RepairCreditRequested)
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("event %s is not a repair credit", event.ID))
	}
	return payload, nil
}
