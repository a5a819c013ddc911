package query

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Validate checks the shape of a query tree without compiling it: node
// kinds, link placement, value types and operators.
func Validate(t Token) error {
	switch n := t.(type) {
	case Property:
		if n.Key == "" {
			return malformed("property query without a key")
		}
		return checkProperty(n)
	case DatesBefore:
		if n.Key == "" {
			return malformed("datesBefore query without a key")
		}
		return nil
	case DatesAfter:
		if n.Key == "" {
			return malformed("datesAfter query without a key")
		}
		return nil
	case Tokens:
		if n.hasLinks() {
			if _, err := triples(n); err != nil {
				return err
			}
		}
		for _, sub := range n {
			if _, isLink := sub.(Link); isLink {
				continue
			}
			if err := Validate(sub); err != nil {
				return err
			}
		}
		return nil
	case Link:
		return malformed("link %q outside of a chain", string(n))
	case nil:
		return malformed("empty query node")
	}
	return malformed("unsupported query node %T", t)
}

// ValidateSearch checks the query of a search envelope.
func ValidateSearch(s Search) error {
	if s.Query == nil {
		return malformed("search has no query")
	}
	return Validate(s.Query)
}

const searchSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["query"],
  "properties": {
    "query": {"$ref": "#/definitions/tokens"}
  },
  "definitions": {
    "tokens": {
      "type": "array",
      "items": {"$ref": "#/definitions/token"}
    },
    "token": {
      "oneOf": [
        {"$ref": "#/definitions/link"},
        {"$ref": "#/definitions/tokens"},
        {"$ref": "#/definitions/property"},
        {"$ref": "#/definitions/dates"}
      ]
    },
    "link": {
      "type": "string",
      "pattern": "^([Aa][Nn][Dd]|[Oo][Rr])$"
    },
    "property": {
      "type": "object",
      "required": ["type", "key"],
      "properties": {
        "type": {"const": "property"},
        "key": {"type": "string", "minLength": 1},
        "valueType": {"enum": ["string", "number", "date", "object", "boolean"]},
        "equalitySymbol": {"enum": ["=", "<", "<=", ">", ">=", "!="]},
        "options": {
          "type": "object",
          "properties": {
            "caseSensitive": {"type": "boolean"},
            "startsWith": {"type": "boolean"},
            "endsWith": {"type": "boolean"}
          }
        }
      }
    },
    "dates": {
      "type": "object",
      "required": ["type", "key", "date"],
      "properties": {
        "type": {"enum": ["datesBefore", "datesAfter"]},
        "key": {"type": "string", "minLength": 1},
        "date": {"type": ["string", "number"]},
        "valueType": {"enum": ["string", "date"]},
        "options": {
          "type": "object",
          "properties": {
            "equalToAndBefore": {"type": "boolean"},
            "equalToAndAfter": {"type": "boolean"}
          }
        }
      }
    }
  }
}`

var searchSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(searchSchemaJSON))
})

// ValidateJSON checks a JSON-encoded search document against the wire
// schema before it is decoded.
func ValidateJSON(raw []byte) error {
	sch, err := searchSchema()
	if err != nil {
		return fmt.Errorf("load search schema: %w", err)
	}
	result, err := sch.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return malformed("invalid JSON: %v", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return malformed("%s", strings.Join(msgs, "; "))
}
