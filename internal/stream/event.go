package stream

// Event is one decoded change notification. Values are JSON-safe: uuids as
// canonical strings, timestamps already formatted for the wire, seqnos as
// numbers.
type Event map[string]any

// Record kinds a subscription can receive.
const (
	KindProject = "project"
	KindReport  = "report"
	KindTopic   = "topic"
	KindComment = "comment"
)

// Administrative kinds, used only for the bootem check and the initial
// fetch; they are never forwarded to live subscribers.
const (
	KindAccount    = "account"
	KindUser       = "user"
	KindPermission = "permission"
	KindSession    = "session"
)

func (e Event) Type() string {
	s, _ := e["type"].(string)
	return s
}

func (e Event) String(key string) string {
	s, _ := e[key].(string)
	return s
}

func (e Event) Bool(key string) bool {
	b, _ := e[key].(bool)
	return b
}

// IsRecordKind reports whether events of this kind are fanned out to
// subscribers (subject to project filtering).
func IsRecordKind(kind string) bool {
	switch kind {
	case KindProject, KindReport, KindTopic, KindComment:
		return true
	}
	return false
}

// IsAdminKind reports whether events of this kind can invalidate an
// authorization snapshot.
func IsAdminKind(kind string) bool {
	switch kind {
	case KindUser, KindPermission, KindSession:
		return true
	}
	return false
}
