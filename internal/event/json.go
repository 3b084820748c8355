package event

import (
	"encoding/json"
	"maps"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/num"
)

// MarshalJSON renders the event as one flat object with sorted keys.
func (e Event) MarshalJSON() ([]byte, error) {
	fields, err := objectFields(e.Envelope)
	if err != nil {
		return nil, err
	}
	if e.Payload != nil {
		payload, err := objectFields(e.Payload)
		if err != nil {
			return nil, err
		}
		maps.Copy(fields, payload)
		fields["type"], _ = json.Marshal(e.Payload.Type())
	}
	return json.Marshal(fields)
}

func objectFields(v any) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// UnmarshalJSON decodes a flat event object, selecting the payload by
// "type". A missing or unknown type is a VALIDATION error.
func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Type   *string `json:"type"`
		Action string  `json:"action"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return errs.Wrap(errs.CodeValidation, err, "malformed event")
	}
	if head.Type == nil {
		return errs.New(errs.CodeValidation, "event has no type")
	}
	switch Action(head.Action) {
	case "", ActionGain, ActionLose, ActionSet:
	default:
		return errs.New(errs.CodeValidation, "unknown action %q", head.Action)
	}

	payload, err := newPayload(Type(*head.Type))
	if err != nil {
		return err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return errs.Wrap(errs.CodeValidation, err, "malformed %s event", *head.Type)
	}
	if wc, ok := payload.(*WordCount); ok {
		if err := decodeWordCount(data, wc); err != nil {
			return err
		}
	} else if err := json.Unmarshal(data, payload); err != nil {
		return errs.Wrap(errs.CodeValidation, err, "malformed %s event", *head.Type)
	}

	e.Envelope = env
	e.Payload = payload
	return nil
}

func newPayload(t Type) (Payload, error) {
	switch t {
	case TypeGold:
		return &Gold{}, nil
	case TypeItem:
		return &Item{}, nil
	case TypeStat:
		return &Stat{}, nil
	case TypeBuff:
		return &Buff{}, nil
	case TypeChapterStart:
		return &ChapterStart{}, nil
	case TypeWordCount:
		return &WordCount{}, nil
	}
	return nil, errs.New(errs.CodeValidation, "unknown event type %q", t)
}

// decodeWordCount accepts the delta as a number or a numeric string.
// Fractions are truncated.
func decodeWordCount(data []byte, wc *WordCount) error {
	var raw struct {
		Delta Amount `json:"word_count_delta"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errs.Wrap(errs.CodeValidation, err, "malformed word_count_delta event")
	}
	if raw.Delta.IsZero() || raw.Delta.IsIndeterminate() {
		wc.Delta = 0
		return nil
	}
	d, err := num.Truncate(raw.Delta.Decimal())
	if err != nil {
		return err
	}
	n, err := d.Int64()
	if err != nil {
		return errs.Wrap(errs.CodeValidation, err, "word_count_delta %s out of range", raw.Delta)
	}
	wc.Delta = n
	return nil
}

// Decode parses one event.
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, validation(err)
	}
	return &e, nil
}

// DecodeList parses a JSON array of events.
func DecodeList(data []byte) ([]*Event, error) {
	var out []*Event
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, validation(err)
	}
	return out, nil
}

// FromMap converts a loosely typed dictionary into an event.
func FromMap(m map[string]any) (*Event, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errs.Wrap(errs.CodeValidation, err, "event is not JSON-encodable")
	}
	return Decode(data)
}

// ToMap renders the event as a generic dictionary, numbers as json.Number.
func (e *Event) ToMap() (map[string]any, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return decodeObject(data)
}

// Patch overlays fields onto a copy of e and re-decodes it, so a patch may
// change the type, rename an item or replace a value. The event id is kept.
func Patch(e *Event, fields map[string]any) (*Event, error) {
	m, err := e.ToMap()
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		if k == "event_id" {
			continue
		}
		if v == nil && k != "value" && k != "qty" && k != "expiry_value" {
			delete(m, k)
			continue
		}
		m[k] = v
	}
	out, err := FromMap(m)
	if err != nil {
		return nil, err
	}
	out.ID = e.ID
	return out, nil
}

// validation keeps *errs.Error values intact and wraps anything else.
func validation(err error) error {
	if errs.CodeOf(err) != "" {
		return err
	}
	return errs.Wrap(errs.CodeValidation, err, "malformed event")
}
