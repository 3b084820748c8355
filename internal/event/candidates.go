package event

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/roach88/litledger/internal/errs"
)

// candidateSchemaSource constrains the shape of a caller-supplied event
// dictionary before it reaches the typed decoder. Extra keys are allowed;
// extractors routinely add their own.
const candidateSchemaSource = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"enum": ["gold", "item", "stat", "buff", "chapter_start", "word_count_delta"]},
    "action": {"enum": ["gain", "lose", "set"]},
    "event_id": {"type": "integer"},
    "reason": {"type": ["string", "null"]},
    "timestamp": {"type": ["string", "null"]},
    "value": {"type": ["string", "number", "null"]},
    "qty": {"type": ["string", "number", "null"]},
    "unit": {"type": ["string", "null"]},
    "name": {"type": ["string", "null"]},
    "effects": {
      "type": "object",
      "additionalProperties": {"type": ["string", "number", "null"]}
    },
    "expiry_type": {"type": ["string", "null"]},
    "expiry_value": {"type": ["string", "number", "null"]},
    "description": {"type": ["string", "null"]},
    "word_count_delta": {"type": ["string", "number"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "is_fuzzy": {"type": "boolean"}
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"enum": ["gold", "item", "stat", "buff"]}}},
      "then": {"required": ["action"]}
    },
    {
      "if": {"properties": {"type": {"enum": ["item", "stat"]}}},
      "then": {"required": ["name"], "properties": {"name": {"type": "string", "minLength": 1}}}
    },
    {
      "if": {"properties": {"type": {"const": "word_count_delta"}}},
      "then": {"required": ["word_count_delta"]}
    }
  ]
}`

var candidateSchema = jsonschema.MustCompileString("candidate.json", candidateSchemaSource)

// ValidateCandidate checks one generic dictionary against the candidate
// schema. Numbers should be json.Number or Go numerics.
func ValidateCandidate(m map[string]any) error {
	if err := candidateSchema.Validate(m); err != nil {
		return errs.Wrap(errs.CodeValidation, err, "candidate event rejected")
	}
	return nil
}

// DecodeCandidate validates and decodes one dictionary. String-typed
// null-ish fields (reason, unit, name, ...) are dropped before decoding.
func DecodeCandidate(m map[string]any) (*Event, error) {
	if err := ValidateCandidate(m); err != nil {
		return nil, err
	}
	clean := make(map[string]any, len(m))
	for k, v := range m {
		if v == nil && k != "value" && k != "qty" && k != "expiry_value" {
			continue
		}
		clean[k] = v
	}
	return FromMap(clean)
}

// DecodeCandidates parses a JSON array of candidate dictionaries, validating
// each against the candidate schema. It stops at the first invalid entry
// and reports its index.
func DecodeCandidates(data []byte) ([]*Event, error) {
	list, err := decodeArray(data)
	if err != nil {
		return nil, err
	}
	out := make([]*Event, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, errs.New(errs.CodeValidation, "candidate %d is not an object", i)
		}
		e, err := DecodeCandidate(m)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func newDecoder(data []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec
}

func decodeObject(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := newDecoder(data).Decode(&m); err != nil {
		return nil, errs.Wrap(errs.CodeValidation, err, "expected a JSON object")
	}
	return m, nil
}

func decodeArray(data []byte) ([]any, error) {
	var list []any
	if err := newDecoder(data).Decode(&list); err != nil {
		return nil, errs.Wrap(errs.CodeValidation, err, "expected a JSON array of events")
	}
	return list, nil
}

// DecodeGeneric parses arbitrary JSON with numbers kept as json.Number, the
// form ValidateCandidate expects.
func DecodeGeneric(data []byte) (any, error) {
	var v any
	if err := newDecoder(data).Decode(&v); err != nil {
		return nil, errs.Wrap(errs.CodeValidation, err, "malformed JSON")
	}
	return v, nil
}
