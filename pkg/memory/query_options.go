package memory

// RecallOpt narrows a [ProfileStore.Recall] query.
type RecallOpt func(*RecallParams)

// RecallParams holds the resolved parameters from a slice of [RecallOpt].
type RecallParams struct {
	// Query restricts results to memories whose text matches it (full-text).
	Query string

	// MinImportance drops memories scored below it.
	MinImportance float64

	// Limit caps the number of results. Zero means [DefaultRecallLimit].
	Limit int
}

// DefaultRecallLimit applies when no limit is requested.
const DefaultRecallLimit = 20

// WithQuery adds a full-text filter.
func WithQuery(q string) RecallOpt {
	return func(p *RecallParams) { p.Query = q }
}

// WithMinImportance drops memories scored below min.
func WithMinImportance(min float64) RecallOpt {
	return func(p *RecallParams) { p.MinImportance = min }
}

// WithLimit caps the number of results.
func WithLimit(n int) RecallOpt {
	return func(p *RecallParams) { p.Limit = n }
}

// ApplyRecallOpts resolves opts so storage backends can read them without
// touching the option closures.
func ApplyRecallOpts(opts []RecallOpt) RecallParams {
	p := RecallParams{}
	for _, o := range opts {
		o(&p)
	}
	if p.Limit <= 0 {
		p.Limit = DefaultRecallLimit
	}
	return p
}
