package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/fastrepair/fastrepair-backend/pkg/enums"
)

type decoderFunc func(payload json.RawMessage) (interface{}, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry maps (event type, envelope version) onto a payload decoder,
// so rows queued by an older release still decode after the payload changes.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]decoderFunc)}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

// RegisterJSON registers a decoder that unmarshals into *T and runs validate
// on the result.
func RegisterJSON[T any](r *DecoderRegistry, eventType enums.OutboxEventType, version int, validate func(*T) error) {
	r.Register(eventType, version, func(raw json.RawMessage) (interface{}, error) {
		payload := new(T)
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, err
		}
		if validate != nil {
			if err := validate(payload); err != nil {
				return nil, err
			}
		}
		return payload, nil
	})
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]; ok {
		return decoder(payload)
	}
	return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
}

// Versions lists the registered versions of eventType in ascending order.
func (r *DecoderRegistry) Versions(eventType enums.OutboxEventType) []int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	var out []int
	for key := range r.registry {
		if key.eventType == eventType {
			out = append(out, key.version)
		}
	}
	sort.Ints(out)
	return out
}
