package query

// Compile turns a query tree into a Predicate. The tree is walked once;
// the returned predicate holds no state and may be applied to any number
// of records.
func Compile(t Token) (Predicate, error) {
	switch n := t.(type) {
	case Property:
		return compileProperty(n)
	case DatesBefore:
		return compileDatesBefore(n)
	case DatesAfter:
		return compileDatesAfter(n)
	case Tokens:
		return compileTokens(n)
	case Link:
		return nil, malformed("link %q outside of a chain", string(n))
	case nil:
		return nil, malformed("empty query node")
	}
	return nil, malformed("unsupported query node %T", t)
}

// Filter validates and compiles s, then returns the records it matches in
// their original order.
func Filter(s Search, records []map[string]any) ([]map[string]any, error) {
	if err := ValidateSearch(s); err != nil {
		return nil, err
	}
	match, err := Compile(s.Query)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		if match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func compileTokens(ts Tokens) (Predicate, error) {
	if !ts.hasLinks() {
		preds := make([]Predicate, 0, len(ts))
		for _, t := range ts {
			p, err := Compile(t)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		}
		return allOf(preds), nil
	}

	groups, err := triples(ts)
	if err != nil {
		return nil, err
	}
	allOr := true
	preds := make([]Predicate, 0, len(groups))
	for _, g := range groups {
		left, err := Compile(g.left)
		if err != nil {
			return nil, err
		}
		right, err := Compile(g.right)
		if err != nil {
			return nil, err
		}
		if g.link.isAnd() {
			allOr = false
			preds = append(preds, both(left, right))
		} else {
			preds = append(preds, either(left, right))
		}
	}
	// A uniform OR chain matches when any pair does. Folding its pairs with
	// AND would demand (a|b)&(b|c), which drops records matching only a or c.
	if allOr {
		return anyOf(preds), nil
	}
	return allOf(preds), nil
}

// triple is one (left, link, right) step of a chain.
type triple struct {
	left  Token
	link  Link
	right Token
}

// triples validates a chain expr, link, expr, link, expr ... and folds it
// into overlapping steps: (e0 l0 e1), (e1 l1 e2), ...
func triples(ts Tokens) ([]triple, error) {
	if len(ts) < 3 || len(ts)%2 == 0 {
		return nil, malformed("chain of %d elements does not alternate expressions and links", len(ts))
	}
	return foldTriples(ts, 0, make([]triple, 0, len(ts)/2))
}

func foldTriples(ts Tokens, at int, acc []triple) ([]triple, error) {
	if at == len(ts)-1 {
		return acc, nil
	}
	left := ts[at]
	if _, isLink := left.(Link); isLink {
		return nil, malformed("expected an expression at position %d, found link %q", at, left)
	}
	link, isLink := ts[at+1].(Link)
	if !isLink {
		return nil, malformed("expected a link at position %d, found %T", at+1, ts[at+1])
	}
	if !link.valid() {
		return nil, malformed("unknown link %q at position %d", string(link), at+1)
	}
	right := ts[at+2]
	if _, isLink := right.(Link); isLink {
		return nil, malformed("expected an expression at position %d, found link %q", at+2, right)
	}
	return foldTriples(ts, at+2, append(acc, triple{left: left, link: link, right: right}))
}

func both(a, b Predicate) Predicate {
	return func(r map[string]any) bool { return a(r) && b(r) }
}

func either(a, b Predicate) Predicate {
	return func(r map[string]any) bool { return a(r) || b(r) }
}

func allOf(preds []Predicate) Predicate {
	return func(r map[string]any) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

func anyOf(preds []Predicate) Predicate {
	return func(r map[string]any) bool {
		for _, p := range preds {
			if p(r) {
				return true
			}
		}
		return false
	}
}
