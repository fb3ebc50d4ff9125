package record

import (
	"encoding/json"
	"time"

	"filmware-sync/internal/domain"
	"filmware-sync/internal/stream"
	"filmware-sync/internal/utils"

	"github.com/google/uuid"
)

// Converters from persisted rows to wire-ready events: uuids become
// canonical strings, timestamps the RFC3339 wire format, jsonb columns are
// inlined raw.

func rawJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

func formatOptTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return utils.FormatTime(*t)
}

func ProjectEvent(p domain.Project) stream.Event {
	return stream.Event{
		"type":           stream.KindProject,
		"srv_id":         p.SrvID,
		"seqno":          p.Seqno,
		"project":        p.Project.String(),
		"name":           p.Name,
		"user":           p.User.String(),
		"submissiontime": utils.FormatTime(p.SubmissionTime),
	}
}

func AccountEvent(a domain.Account) stream.Event {
	return stream.Event{
		"type":           stream.KindAccount,
		"srv_id":         a.SrvID,
		"seqno":          a.Seqno,
		"account":        a.Account.String(),
		"user":           a.User.String(),
		"name":           a.Name,
		"email":          a.Email,
		"submissiontime": utils.FormatTime(a.SubmissionTime),
	}
}

func UserEvent(u domain.User) stream.Event {
	return stream.Event{
		"type":           stream.KindUser,
		"srv_id":         u.SrvID,
		"seqno":          u.Seqno,
		"user":           u.User.String(),
		"account":        u.Account.String(),
		"submissiontime": utils.FormatTime(u.SubmissionTime),
	}
}

func PermissionEvent(p domain.Permission) stream.Event {
	return stream.Event{
		"type":           stream.KindPermission,
		"srv_id":         p.SrvID,
		"seqno":          p.Seqno,
		"version":        p.Version.String(),
		"user":           p.User.String(),
		"project":        p.Project.String(),
		"kind":           p.Kind,
		"enable":         p.Enable,
		"author":         p.Author.String(),
		"submissiontime": utils.FormatTime(p.SubmissionTime),
	}
}

func SessionEvent(s domain.Session) stream.Event {
	return stream.Event{
		"type":    stream.KindSession,
		"session": s.Session.String(),
		"valid":   s.Valid,
	}
}

func ReportEvent(r domain.Report) stream.Event {
	return stream.Event{
		"type":           stream.KindReport,
		"srv_id":         r.SrvID,
		"seqno":          r.Seqno,
		"project":        r.Project.String(),
		"report":         r.Report.String(),
		"version":        r.Version.String(),
		"operation":      rawJSON(r.Operation),
		"modifies":       rawJSON(r.Modifies),
		"reason":         r.Reason,
		"user":           r.User.String(),
		"submissiontime": utils.FormatTime(r.SubmissionTime),
		"authortime":     utils.FormatTime(r.AuthorTime),
		"archivetime":    formatOptTime(r.ArchiveTime),
	}
}

func TopicEvent(t domain.Topic) stream.Event {
	return stream.Event{
		"type":           stream.KindTopic,
		"srv_id":         t.SrvID,
		"seqno":          t.Seqno,
		"topic":          t.Topic.String(),
		"project":        t.Project.String(),
		"user":           t.User.String(),
		"name":           t.Name,
		"links":          rawJSON(t.Links),
		"version":        t.Version.String(),
		"submissiontime": utils.FormatTime(t.SubmissionTime),
		"authortime":     utils.FormatTime(t.AuthorTime),
		"archivetime":    formatOptTime(t.ArchiveTime),
	}
}

func CommentEvent(c domain.Comment) stream.Event {
	var parent any
	if c.Parent != nil {
		parent = c.Parent.String()
	}
	return stream.Event{
		"type":           stream.KindComment,
		"srv_id":         c.SrvID,
		"seqno":          c.Seqno,
		"comment":        c.Comment.String(),
		"topic":          c.Topic.String(),
		"project":        c.Project.String(),
		"user":           c.User.String(),
		"parent":         parent,
		"body":           c.Body,
		"version":        c.Version.String(),
		"submissiontime": utils.FormatTime(c.SubmissionTime),
		"authortime":     utils.FormatTime(c.AuthorTime),
		"archivetime":    formatOptTime(c.ArchiveTime),
	}
}

// ReportNotification is the compact change notification for a report
// insert; subscribers expand it by version before delivery.
func ReportNotification(version uuid.UUID) stream.Event {
	return stream.Event{
		"type":    stream.KindReport,
		"version": version.String(),
	}
}
