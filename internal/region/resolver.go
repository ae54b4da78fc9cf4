package region

import (
	"fmt"

	"vehicle-anpr/internal/domain/anpr"
)

type Resolver struct {
	table *Table
}

func NewResolver(table *Table) *Resolver {
	if table == nil {
		table = Empty()
	}
	return &Resolver{table: table}
}

// Resolve maps plate text to "District, State", "State", "Unknown Region" or
// "N/A" when the text is too short to carry a state code. A trailing
// uncertainty marker is ignored.
func (r *Resolver) Resolve(text string) string {
	text = anpr.PlateCandidate{Text: text}.Bare()
	if len(text) < stateCodeLen {
		return anpr.RegionNA
	}

	state, hasState := r.table.State(text[:stateCodeLen])

	var district string
	var hasDistrict bool
	if len(text) >= districtCodeLen {
		district, hasDistrict = r.table.District(text[:districtCodeLen])
	}

	switch {
	case hasState && hasDistrict:
		return fmt.Sprintf("%s, %s", district, state)
	case hasState:
		return state
	default:
		return anpr.RegionUnknown
	}
}
