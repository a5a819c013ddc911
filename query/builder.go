package query

// Builder assembles a query tree fluently:
//
//	query.Build().
//		Property("name", "-1", query.EndsWith()).
//		Or().
//		Complex(func(b *query.Builder) *query.Builder {
//			return b.Property("aNumber", 8, query.WithType(query.Number))
//		}).
//		Compile()
type Builder struct {
	tokens Tokens
}

// Build starts an empty query.
func Build() *Builder {
	return &Builder{}
}

// PropertyOption adjusts a property query built by Builder.Property.
type PropertyOption func(*Property)

func WithType(vt ValueType) PropertyOption {
	return func(p *Property) { p.ValueType = vt }
}

func WithSymbol(sym EqualitySymbol) PropertyOption {
	return func(p *Property) { p.EqualitySymbol = sym }
}

func CaseSensitive() PropertyOption {
	return func(p *Property) { p.Options.CaseSensitive = true }
}

func StartsWith() PropertyOption {
	return func(p *Property) { p.Options.StartsWith = true }
}

func EndsWith() PropertyOption {
	return func(p *Property) { p.Options.EndsWith = true }
}

func (b *Builder) Property(key string, value any, opts ...PropertyOption) *Builder {
	p := Property{Key: key, Value: value, ValueType: String, EqualitySymbol: Equal}
	for _, opt := range opts {
		opt(&p)
	}
	b.tokens = append(b.tokens, p)
	return b
}

// DatesBefore adds a bound matching instants before date, or equal to it
// when inclusive is set.
func (b *Builder) DatesBefore(key string, date any, inclusive bool) *Builder {
	b.tokens = append(b.tokens, DatesBefore{
		Key:       key,
		Date:      date,
		ValueType: Date,
		Options:   DatesBeforeOptions{EqualToAndBefore: inclusive},
	})
	return b
}

// DatesAfter adds a bound matching instants after date, or equal to it
// when inclusive is set.
func (b *Builder) DatesAfter(key string, date any, inclusive bool) *Builder {
	b.tokens = append(b.tokens, DatesAfter{
		Key:       key,
		Date:      date,
		ValueType: Date,
		Options:   DatesAfterOptions{EqualToAndAfter: inclusive},
	})
	return b
}

func (b *Builder) And() *Builder {
	b.tokens = append(b.tokens, And)
	return b
}

func (b *Builder) Or() *Builder {
	b.tokens = append(b.tokens, Or)
	return b
}

// Complex adds a grouped sub-expression built by fn.
func (b *Builder) Complex(fn func(*Builder) *Builder) *Builder {
	sub := fn(Build())
	b.tokens = append(b.tokens, sub.tokens)
	return b
}

// Compile returns the assembled search. It does not validate the tree.
func (b *Builder) Compile() Search {
	out := make(Tokens, len(b.tokens))
	copy(out, b.tokens)
	return Search{Query: out}
}
