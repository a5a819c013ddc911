package query

import (
	"encoding/json"
	"reflect"
	"regexp"
)

func compileProperty(p Property) (Predicate, error) {
	if p.Key == "" {
		return nil, malformed("property query without a key")
	}
	if err := checkProperty(p); err != nil {
		return nil, err
	}

	sym := p.symbol()
	if isEmpty(p.Value) {
		if sym == NotEqual {
			// "not equal to nothing" holds for every populated field.
			return func(r map[string]any) bool { return !isEmpty(r[p.Key]) }, nil
		}
		return withEmptyValueRule(p, func(map[string]any) bool { return false }), nil
	}

	var (
		cmp Predicate
		err error
	)
	switch p.valueType() {
	case String, Date:
		cmp, err = compileString(p)
	case Number:
		cmp, err = compileNumber(p)
	case Boolean:
		cmp, err = compileBoolean(p)
	case Object:
		cmp, err = compileObject(p)
	}
	if err != nil {
		return nil, err
	}
	return withEmptyValueRule(p, cmp), nil
}

// checkProperty rejects value types and operators the compiler has no
// comparison for.
func checkProperty(p Property) error {
	sym := p.symbol()
	switch sym {
	case Equal, NotEqual, LessThan, LessOrEqual, GreaterThan, GreaterOrEqual:
	default:
		return malformed("unknown equality symbol %q on %q", p.EqualitySymbol, p.Key)
	}
	switch p.valueType() {
	case Number:
		return nil
	case String, Date, Boolean, Object:
		if sym != Equal && sym != NotEqual {
			return malformed("equality symbol %q is not supported for %s property %q", sym, p.valueType(), p.Key)
		}
		return nil
	}
	return malformed("unknown value type %q on %q", p.ValueType, p.Key)
}

// withEmptyValueRule settles nil and absent values before cmp runs.
// Not-equal comparisons bypass the rule entirely.
func withEmptyValueRule(p Property, cmp Predicate) Predicate {
	if p.symbol() == NotEqual {
		return cmp
	}
	wantEmpty := isEmpty(p.Value)
	return func(r map[string]any) bool {
		gotEmpty := isEmpty(r[p.Key])
		if wantEmpty && gotEmpty {
			return true
		}
		if wantEmpty != gotEmpty {
			return false
		}
		return cmp(r)
	}
}

func negateIf(ne bool, pred Predicate) Predicate {
	if !ne {
		return pred
	}
	return func(r map[string]any) bool { return !pred(r) }
}

func compileString(p Property) (Predicate, error) {
	expr := stringify(p.Value)
	if p.Options.StartsWith {
		expr = "^" + expr
	}
	if p.Options.EndsWith {
		expr += "$"
	}
	if !p.Options.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, malformed("invalid pattern for %q: %v", p.Key, err)
	}
	return negateIf(p.symbol() == NotEqual, func(r map[string]any) bool {
		v := r[p.Key]
		if isEmpty(v) {
			return false
		}
		return re.MatchString(stringify(v))
	}), nil
}

func compileNumber(p Property) (Predicate, error) {
	want, ok := toFloat(p.Value)
	if !ok {
		return nil, malformed("number query on %q has non-numeric value %v", p.Key, p.Value)
	}
	sym := p.symbol()
	return func(r map[string]any) bool {
		got, ok := toFloat(r[p.Key])
		if !ok {
			return sym == NotEqual
		}
		switch sym {
		case Equal:
			return got == want
		case GreaterThan:
			return got > want
		case GreaterOrEqual:
			return got >= want
		case LessThan:
			return got < want
		case LessOrEqual:
			return got <= want
		case NotEqual:
			return got != want
		}
		return false
	}, nil
}

func compileBoolean(p Property) (Predicate, error) {
	want, ok := p.Value.(bool)
	if !ok {
		return nil, malformed("boolean query on %q has non-boolean value %v", p.Key, p.Value)
	}
	return negateIf(p.symbol() == NotEqual, func(r map[string]any) bool {
		got, ok := r[p.Key].(bool)
		return ok && got == want
	}), nil
}

func compileObject(p Property) (Predicate, error) {
	var want any
	if s, ok := p.Value.(string); ok {
		if err := json.Unmarshal([]byte(s), &want); err != nil {
			return nil, malformed("object query on %q is not valid JSON: %v", p.Key, err)
		}
	} else {
		var err error
		if want, err = normalize(p.Value); err != nil {
			return nil, malformed("object query on %q cannot be encoded: %v", p.Key, err)
		}
	}
	return negateIf(p.symbol() == NotEqual, func(r map[string]any) bool {
		v := r[p.Key]
		if isEmpty(v) {
			return false
		}
		got, err := normalize(v)
		if err != nil {
			return false
		}
		return reflect.DeepEqual(want, got)
	}), nil
}

func compileDatesBefore(q DatesBefore) (Predicate, error) {
	if q.Key == "" {
		return nil, malformed("datesBefore query without a key")
	}
	ref, ok := parseInstant(q.Date)
	if !ok {
		return nil, malformed("datesBefore query on %q has unparseable date %v", q.Key, q.Date)
	}
	inclusive := q.Options.EqualToAndBefore
	return func(r map[string]any) bool {
		got, ok := parseInstant(r[q.Key])
		if !ok {
			return false
		}
		return got.Before(ref) || (inclusive && got.Equal(ref))
	}, nil
}

func compileDatesAfter(q DatesAfter) (Predicate, error) {
	if q.Key == "" {
		return nil, malformed("datesAfter query without a key")
	}
	ref, ok := parseInstant(q.Date)
	if !ok {
		return nil, malformed("datesAfter query on %q has unparseable date %v", q.Key, q.Date)
	}
	inclusive := q.Options.EqualToAndAfter
	return func(r map[string]any) bool {
		got, ok := parseInstant(r[q.Key])
		if !ok {
			return false
		}
		return got.After(ref) || (inclusive && got.Equal(ref))
	}, nil
}
