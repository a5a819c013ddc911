package query

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses a JSON search document:
//
//	{"query": [{"type": "property", "key": "name", "value": "a"}, "OR", [...]]}
//
// Tokens are property or date objects, "AND"/"OR" link strings, or nested
// arrays for grouped sub-expressions.
func Decode(raw []byte) (Search, error) {
	var s Search
	if err := json.Unmarshal(raw, &s); err != nil {
		return Search{}, err
	}
	return s, nil
}

type propertyJSON struct {
	Type           string          `json:"type"`
	Key            string          `json:"key"`
	Value          any             `json:"value"`
	ValueType      ValueType       `json:"valueType,omitempty"`
	EqualitySymbol EqualitySymbol  `json:"equalitySymbol,omitempty"`
	Options        PropertyOptions `json:"options"`
}

type datesJSON struct {
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Date      any             `json:"date"`
	ValueType ValueType       `json:"valueType,omitempty"`
	Options   json.RawMessage `json:"options,omitempty"`
}

func (p Property) MarshalJSON() ([]byte, error) {
	return json.Marshal(propertyJSON{
		Type:           "property",
		Key:            p.Key,
		Value:          p.Value,
		ValueType:      p.ValueType,
		EqualitySymbol: p.EqualitySymbol,
		Options:        p.Options,
	})
}

func (q DatesBefore) MarshalJSON() ([]byte, error) {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return nil, err
	}
	return json.Marshal(datesJSON{Type: "datesBefore", Key: q.Key, Date: q.Date, ValueType: q.ValueType, Options: opts})
}

func (q DatesAfter) MarshalJSON() ([]byte, error) {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return nil, err
	}
	return json.Marshal(datesJSON{Type: "datesAfter", Key: q.Key, Date: q.Date, ValueType: q.ValueType, Options: opts})
}

func (t *Tokens) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return malformed("compound node must be an array: %v", err)
	}
	out := make(Tokens, 0, len(raws))
	for i, raw := range raws {
		tok, err := decodeToken(raw)
		if err != nil {
			return fmt.Errorf("token %d: %w", i, err)
		}
		out = append(out, tok)
	}
	*t = out
	return nil
}

func decodeToken(raw json.RawMessage) (Token, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, malformed("empty token")
	}
	switch trimmed[0] {
	case '"':
		var link string
		if err := json.Unmarshal(trimmed, &link); err != nil {
			return nil, err
		}
		return Link(link), nil
	case '[':
		var nested Tokens
		if err := json.Unmarshal(trimmed, &nested); err != nil {
			return nil, err
		}
		return nested, nil
	case '{':
		return decodeNode(trimmed)
	}
	return nil, malformed("unexpected token %s", trimmed)
}

func decodeNode(raw []byte) (Token, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case "property":
		var p propertyJSON
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return Property{
			Key:            p.Key,
			Value:          p.Value,
			ValueType:      p.ValueType,
			EqualitySymbol: p.EqualitySymbol,
			Options:        p.Options,
		}, nil
	case "datesBefore":
		var d datesJSON
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		q := DatesBefore{Key: d.Key, Date: d.Date, ValueType: d.ValueType}
		if len(d.Options) > 0 {
			if err := json.Unmarshal(d.Options, &q.Options); err != nil {
				return nil, err
			}
		}
		return q, nil
	case "datesAfter":
		var d datesJSON
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		q := DatesAfter{Key: d.Key, Date: d.Date, ValueType: d.ValueType}
		if len(d.Options) > 0 {
			if err := json.Unmarshal(d.Options, &q.Options); err != nil {
				return nil, err
			}
		}
		return q, nil
	}
	return nil, malformed("unknown query node type %q", head.Type)
}
