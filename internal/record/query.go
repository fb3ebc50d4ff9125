package record

import (
	"encoding/json"
	"fmt"
)

// Cursor marks the last change a client consumed from one server. On the
// wire it is a two-element [server_id, seqno] tuple.
type Cursor struct {
	SrvID string
	Seqno int64
}

func (c Cursor) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.SrvID, c.Seqno})
}

func (c *Cursor) UnmarshalJSON(data []byte) error {
	var tuple []any
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("invalid cursor (%s)", data)
	}
	srv, ok := tuple[0].(string)
	if !ok {
		return fmt.Errorf("invalid cursor server id (%s)", data)
	}
	seq, ok := tuple[1].(float64)
	if !ok {
		return fmt.Errorf("invalid cursor seqno (%s)", data)
	}
	c.SrvID = srv
	c.Seqno = int64(seq)
	return nil
}

// Query bounds one kind's initial fetch: rows already covered by a since
// cursor are excluded, and Match/Value optionally restrict to one column
// value. An empty Match means no restriction.
type Query struct {
	Since []Cursor
	Match string
	Value any
}

// KindSpec describes one subscribable record kind: the wire field naming
// it in subscribe messages, the event type of its rows, and the columns a
// filter may match on. Kinds without matchables accept only since-bounded
// catch-all specs.
type KindSpec struct {
	Field      string
	Kind       string
	Matchables []string
}

// KindSpecs is the single lookup table driving filter validation, initial
// fetches, and live predicates for every record kind.
var KindSpecs = []KindSpec{
	{Field: "projects", Kind: "project"},
	{Field: "accounts", Kind: "account"},
	{Field: "users", Kind: "user"},
	{Field: "permissions", Kind: "permission"},
	{Field: "reports", Kind: "report", Matchables: []string{"project", "user"}},
	{Field: "topics", Kind: "topic", Matchables: []string{"project", "user"}},
	{Field: "comments", Kind: "comment", Matchables: []string{"project", "topic", "user"}},
}

// KindByField looks a kind up by its wire field name.
func KindByField(field string) (KindSpec, bool) {
	for _, ks := range KindSpecs {
		if ks.Field == field {
			return ks, true
		}
	}
	return KindSpec{}, false
}

// Matchable reports whether a filter on this kind may match on the named
// column. The catch-all marker "*" and an empty match are always allowed.
func (ks KindSpec) Matchable(match string) bool {
	if match == "" || match == "*" {
		return true
	}
	for _, m := range ks.Matchables {
		if m == match {
			return true
		}
	}
	return false
}
