package report

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind tags the shape of a decoded upstream payload.
type Kind int

const (
	KindUnexpected Kind = iota
	KindRecordList
	KindRecord
	KindErrorObject
)

func (k Kind) String() string {
	switch k {
	case KindRecordList:
		return "record_list"
	case KindRecord:
		return "record"
	case KindErrorObject:
		return "error_object"
	default:
		return "unexpected"
	}
}

// Record is one upstream JSON object. Keys keeps first-appearance order so
// column order is stable across runs.
type Record struct {
	Keys   []string
	Values map[string]any
}

// Payload is the classified upstream response. Exactly one of the fields
// beyond Kind is meaningful, depending on Kind.
type Payload struct {
	Kind Kind

	// KindRecordList, KindRecord
	Records []Record

	// KindErrorObject
	ErrorObject map[string]any

	// KindUnexpected: JSON type name of the offending value.
	JSONType string
}

// errorKeys mark a single object as an upstream error report.
var errorKeys = []string{"error", "message"}

// Classify decodes body and tags its shape. The returned error is non-nil only
// when body is not valid JSON.
func Classify(body []byte) (Payload, error) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Payload{}, err
	}

	trimmed := bytes.TrimSpace(body)
	switch trimmed[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return Payload{}, err
		}
		records := make([]Record, 0, len(elems))
		for i, raw := range elems {
			raw = bytes.TrimSpace(raw)
			if len(raw) == 0 || raw[0] != '{' {
				return Payload{Kind: KindUnexpected, JSONType: fmt.Sprintf("array element %d of type %s", i, jsonType(raw))}, nil
			}
			rec, err := decodeObject(raw)
			if err != nil {
				return Payload{}, err
			}
			records = append(records, rec)
		}
		return Payload{Kind: KindRecordList, Records: records}, nil

	case '{':
		rec, err := decodeObject(trimmed)
		if err != nil {
			return Payload{}, err
		}
		for _, k := range errorKeys {
			if _, ok := rec.Values[k]; ok {
				return Payload{Kind: KindErrorObject, ErrorObject: rec.Values}, nil
			}
		}
		return Payload{Kind: KindRecord, Records: []Record{rec}}, nil

	default:
		return Payload{Kind: KindUnexpected, JSONType: jsonType(trimmed)}, nil
	}
}

// decodeObject reads a JSON object preserving key order. Numbers stay
// json.Number so integer columns are not widened to floats.
func decodeObject(raw []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if _, err := dec.Token(); err != nil { // '{'
		return Record{}, err
	}

	rec := Record{Values: map[string]any{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Record{}, fmt.Errorf("unexpected object key %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return Record{}, err
		}
		if _, seen := rec.Values[key]; !seen {
			rec.Keys = append(rec.Keys, key)
		}
		rec.Values[key] = v
	}
	return rec, nil
}

func jsonType(raw []byte) string {
	if len(raw) == 0 {
		return "empty"
	}
	switch raw[0] {
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	case '[':
		return "array"
	case '{':
		return "object"
	default:
		return "number"
	}
}
