// Package directory implements the vessel catalog lookup used to resolve
// free-text vessel references into canonical records.
//
// Phone-typed vessel names are messy: abbreviated ("YAMUNA" for
// "GCL YAMUNA"), lower-cased, or off by a character. FindByName therefore
// layers three strategies, cheapest first: exact match, bidirectional
// substring containment, and a bounded edit-distance fallback. Identifiers
// are machine-issued numeric codes and only ever match exactly.
package directory

import "strings"

// Record is one catalog entry mapping a canonical vessel name to its
// identifier (e.g. an IMO number). Records are immutable once loaded.
type Record struct {
	Name       string `yaml:"name" json:"name"`
	Identifier string `yaml:"identifier" json:"identifier"`
}

// MaxEditDistance is the largest Levenshtein distance accepted by the fuzzy
// fallback in FindByName. Anything further away is reported as not found.
const MaxEditDistance = 2

// Directory holds the loaded catalog. It is immutable after construction
// and therefore safe for concurrent use without locking.
type Directory struct {
	records []Record
	// normalized[i] is records[i].Name after normalize(), precomputed once.
	normalized []string
}

// New builds a Directory from the given records. Entries with an empty name
// or identifier are dropped so lookups never return a partial record.
func New(records []Record) *Directory {
	d := &Directory{}
	for _, r := range records {
		name := strings.TrimSpace(r.Name)
		id := strings.TrimSpace(r.Identifier)
		if name == "" || id == "" {
			continue
		}
		d.records = append(d.records, Record{Name: name, Identifier: id})
		d.normalized = append(d.normalized, normalize(name))
	}
	return d
}

// Len returns the number of usable catalog entries.
func (d *Directory) Len() int {
	return len(d.records)
}

// Records returns a copy of the loaded catalog, in load order.
func (d *Directory) Records() []Record {
	out := make([]Record, len(d.records))
	copy(out, d.records)
	return out
}

// FindByName resolves a free-text vessel name. Strategies are tried in
// order and the first hit wins:
//
//  1. exact match on the normalized name
//  2. substring containment in either direction
//  3. minimum edit distance, accepted only when ≤ MaxEditDistance
//
// Edit-distance ties are broken by catalog order: the first record with the
// minimal distance wins. Empty or unresolvable input returns ok=false.
func (d *Directory) FindByName(query string) (Record, bool) {
	q := normalize(query)
	if q == "" {
		return Record{}, false
	}

	for i, name := range d.normalized {
		if name == q {
			return d.records[i], true
		}
	}

	for i, name := range d.normalized {
		if strings.Contains(q, name) || strings.Contains(name, q) {
			return d.records[i], true
		}
	}

	best, bestDist := -1, MaxEditDistance+1
	for i, name := range d.normalized {
		if dist := levenshtein(q, name); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best >= 0 && bestDist <= MaxEditDistance {
		return d.records[best], true
	}
	return Record{}, false
}

// FindByIdentifier resolves an exact identifier. There is no fuzzy matching
// for identifiers. Empty or unknown input returns ok=false.
func (d *Directory) FindByIdentifier(id string) (Record, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, false
	}
	for _, r := range d.records {
		if r.Identifier == id {
			return r, true
		}
	}
	return Record{}, false
}

// normalize trims surrounding whitespace and upper-cases the name so that
// lookups are case- and padding-insensitive.
func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// levenshtein computes the classic dynamic-programming edit distance with
// unit costs for insertion, deletion, and substitution. Two rolling rows
// keep the allocation at O(len(b)).
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
