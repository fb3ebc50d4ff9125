package session

import (
	"fmt"

	"filmware-sync/internal/errors"
	"filmware-sync/internal/record"
	"filmware-sync/internal/stream"
)

// FilterSpec is one validated kind sub-object of a subscribe or fetch
// message: which kind, the since bound, and an optional single-field
// equality match. All kinds share this one shape; the per-kind differences
// live entirely in the KindSpecs lookup table.
type FilterSpec struct {
	Kind  record.KindSpec
	Query record.Query

	// matchValue is the pre-rendered comparison value for the live
	// predicate; empty when the spec is a catch-all.
	matchValue string
}

// ParseFilters validates every kind sub-object of a subscribe/fetch
// message. Invalid match fields and malformed values are user errors.
func ParseFilters(kinds map[string]KindRequest) ([]FilterSpec, error) {
	specs := make([]FilterSpec, 0, len(kinds))
	for field, req := range kinds {
		ks, ok := record.KindByField(field)
		if !ok {
			return nil, errors.NewUserError(fmt.Sprintf("unknown record kind (%s)", field))
		}
		if !ks.Matchable(req.Match) {
			return nil, errors.NewUserError(fmt.Sprintf("cannot match %s on %q", field, req.Match))
		}

		spec := FilterSpec{
			Kind:  ks,
			Query: record.Query{Since: req.Since, Match: req.Match, Value: req.Value},
		}
		if req.Match != "" && req.Match != "*" {
			// every matchable column holds uuids, so the value must be a
			// string
			value, ok := req.Value.(string)
			if !ok {
				return nil, errors.NewUserError(fmt.Sprintf("invalid %s match value (%v)", field, req.Value))
			}
			spec.matchValue = value
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Matches is the live predicate: does this change event fall under the
// spec? Project membership is enforced upstream by the access monitor, so
// only kind and the declared match are tested here.
func (f FilterSpec) Matches(ev stream.Event) bool {
	if ev.Type() != f.Kind.Kind {
		return false
	}
	if f.matchValue == "" {
		return true
	}
	return ev.String(f.Query.Match) == f.matchValue
}
