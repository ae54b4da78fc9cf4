package region

import (
	"strings"

	"vehicle-anpr/internal/domain/anpr"
)

const (
	stateCodeLen    = 2
	districtCodeLen = 4
)

// Table maps RTO code prefixes to state and district names. It is built once
// and never mutated, so concurrent readers need no locking.
type Table struct {
	states    map[string]string
	districts map[string]string
}

// NewTable builds the lookup maps. Codes shorter than 2 characters are
// ignored, codes shorter than 4 contribute only a state. Later rows win.
func NewTable(entries []anpr.RTOEntry) *Table {
	t := &Table{
		states:    make(map[string]string),
		districts: make(map[string]string),
	}
	for _, e := range entries {
		code := strings.ToUpper(strings.TrimSpace(e.Code))
		state := strings.TrimSpace(e.State)
		district := strings.TrimSpace(e.District)

		if len(code) >= stateCodeLen && state != "" {
			t.states[code[:stateCodeLen]] = state
		}
		if len(code) >= districtCodeLen && district != "" {
			t.districts[code[:districtCodeLen]] = district
		}
	}
	return t
}

// Empty returns a table where every lookup misses.
func Empty() *Table {
	return NewTable(nil)
}

func (t *Table) State(code string) (string, bool) {
	name, ok := t.states[code]
	return name, ok
}

func (t *Table) District(code string) (string, bool) {
	name, ok := t.districts[code]
	return name, ok
}

func (t *Table) Len() (states, districts int) {
	return len(t.states), len(t.districts)
}
