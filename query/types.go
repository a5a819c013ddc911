// Package query compiles search expression trees into record predicates.
//
// A tree is built from property comparisons (Property, DatesBefore,
// DatesAfter) joined into compound nodes (Tokens). A compound node is
// either a flat group of sub-expressions that must all match, or an
// alternating chain of sub-expressions and AND/OR links:
//
//	Tokens{a, Link("AND"), b, Link("OR"), c}
//
// Compile turns a tree into a Predicate once; the predicate is then
// applied to every record of a collection.
package query

import "strings"

// Predicate reports whether a record matches a compiled query.
type Predicate func(record map[string]any) bool

// ValueType selects the comparison semantics of a property query.
type ValueType string

const (
	String  ValueType = "string"
	Number  ValueType = "number"
	Date    ValueType = "date"
	Object  ValueType = "object"
	Boolean ValueType = "boolean"
)

// EqualitySymbol is the comparison operator of a property query.
type EqualitySymbol string

const (
	Equal          EqualitySymbol = "="
	LessThan       EqualitySymbol = "<"
	LessOrEqual    EqualitySymbol = "<="
	GreaterThan    EqualitySymbol = ">"
	GreaterOrEqual EqualitySymbol = ">="
	NotEqual       EqualitySymbol = "!="
)

// Token is a node of a query tree. The set of implementations is closed:
// Property, DatesBefore, DatesAfter, Link and Tokens.
type Token interface {
	token()
}

// PropertyOptions tune string matching.
type PropertyOptions struct {
	CaseSensitive bool `json:"caseSensitive,omitempty"`
	StartsWith    bool `json:"startsWith,omitempty"`
	EndsWith      bool `json:"endsWith,omitempty"`
}

// Property compares a single record field against Value.
// An empty ValueType means String and an empty EqualitySymbol means Equal.
type Property struct {
	Key            string
	Value          any
	ValueType      ValueType
	EqualitySymbol EqualitySymbol
	Options        PropertyOptions
}

func (p Property) valueType() ValueType {
	if p.ValueType == "" {
		return String
	}
	return p.ValueType
}

func (p Property) symbol() EqualitySymbol {
	if p.EqualitySymbol == "" {
		return Equal
	}
	return p.EqualitySymbol
}

// DatesBeforeOptions controls whether the reference instant itself matches.
type DatesBeforeOptions struct {
	EqualToAndBefore bool `json:"equalToAndBefore"`
}

// DatesBefore matches records whose Key field is an instant before Date.
type DatesBefore struct {
	Key       string
	Date      any
	ValueType ValueType
	Options   DatesBeforeOptions
}

// DatesAfterOptions controls whether the reference instant itself matches.
type DatesAfterOptions struct {
	EqualToAndAfter bool `json:"equalToAndAfter"`
}

// DatesAfter matches records whose Key field is an instant after Date.
type DatesAfter struct {
	Key       string
	Date      any
	ValueType ValueType
	Options   DatesAfterOptions
}

// Link joins two sub-expressions of a chain. Valid values are AND and OR
// in any letter case.
type Link string

const (
	And Link = "AND"
	Or  Link = "OR"
)

func (l Link) isAnd() bool { return strings.EqualFold(string(l), string(And)) }
func (l Link) isOr() bool  { return strings.EqualFold(string(l), string(Or)) }
func (l Link) valid() bool { return l.isAnd() || l.isOr() }

// Tokens is a compound node: either a group of sub-expressions with no
// links, or a chain alternating sub-expressions and links.
type Tokens []Token

func (t Tokens) hasLinks() bool {
	for _, tok := range t {
		if _, ok := tok.(Link); ok {
			return true
		}
	}
	return false
}

func (Property) token()    {}
func (DatesBefore) token() {}
func (DatesAfter) token()  {}
func (Link) token()        {}
func (Tokens) token()      {}

// Search is the envelope handed over by the query front end.
type Search struct {
	Query Tokens `json:"query"`
}
