package memory

// Options bounds what the Context Builder reads and what persistence writes.
type Options struct {
	MaxMessages      int
	MaxMemories      int
	CandidateLimit   int
	SummaryMaxLength int
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxMessages:      20,
		MaxMemories:      5,
		CandidateLimit:   100,
		SummaryMaxLength: 500,
	}
}

// withDefaults fills non-positive fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxMessages <= 0 {
		o.MaxMessages = d.MaxMessages
	}
	if o.MaxMemories <= 0 {
		o.MaxMemories = d.MaxMemories
	}
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = d.CandidateLimit
	}
	if o.SummaryMaxLength <= 0 {
		o.SummaryMaxLength = d.SummaryMaxLength
	}
	if o.CandidateLimit < o.MaxMemories {
		o.CandidateLimit = o.MaxMemories
	}
	return o
}
