package types

// Kind is the underlying type of a time series as reported by the source.
// A series keeps the first Kind it is observed with for its whole lifetime.
type Kind int

const (
	KindScalar Kind = iota
	KindNonScalar
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindNonScalar:
		return "non_scalar"
	}
	return "unknown"
}

// Record is one raw data point read from a source. Records are never
// mutated after creation.
type Record struct {
	Run      string
	Tag      string
	Step     int64
	WallTime float64 // seconds since the Unix epoch
	Value    float64

	// Metadata is an opaque description of the series (for Prometheus
	// sources, an encoded MetricFamily header). It is sent at most once per
	// (run, tag) pair.
	Metadata []byte

	Kind Kind
}

// RunRecords is the ordered list of records for one run.
type RunRecords struct {
	Name    string
	Records []Record
}

// GroupByRun groups records by Run, keeping runs in first-seen order and
// records in arrival order within each run.
func GroupByRun(records []Record) []RunRecords {
	var out []RunRecords
	index := make(map[string]int)
	for _, r := range records {
		i, ok := index[r.Run]
		if !ok {
			i = len(out)
			index[r.Run] = i
			out = append(out, RunRecords{Name: r.Run})
		}
		out[i].Records = append(out[i].Records, r)
	}
	return out
}

// Count returns the total number of records across runs.
func Count(runs []RunRecords) int {
	n := 0
	for _, r := range runs {
		n += len(r.Records)
	}
	return n
}
