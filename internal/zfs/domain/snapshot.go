package domain

// Snapshot lists the counter names present in the statistics cache at one
// point in time. It is the input the identifier space is built from.
type Snapshot struct {
	Arcstats []string
	ZIL      []string
	Pools    []string
	PoolIO   map[string][]string
}
