package parser

// interner shares one string per distinct account name and commodity, so a ledger
// with thousands of postings holds each name once.
type interner map[string]string

func newInterner(capacity int) interner {
	return make(interner, capacity)
}

// bytes returns the shared string equal to b.
func (in interner) bytes(b []byte) string {
	// No allocation for lookups keyed by string(b).
	if s, ok := in[string(b)]; ok {
		return s
	}
	s := string(b)
	in[s] = s
	return s
}
