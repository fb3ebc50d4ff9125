package record

import (
	"encoding/json"
	"fmt"
	"time"

	"filmware-sync/internal/domain"
	"filmware-sync/internal/errors"
	"filmware-sync/internal/utils"

	"github.com/google/uuid"
)

// Batch is one upload's worth of new record versions, grouped by kind.
// The whole batch is inserted in a single transaction.
type Batch struct {
	Reports  []domain.Report
	Topics   []domain.Topic
	Comments []domain.Comment
}

func (b *Batch) Empty() bool {
	return len(b.Reports) == 0 && len(b.Topics) == 0 && len(b.Comments) == 0
}

// ParseUpload validates and converts the raw objects of an upload message.
// The author and submission time come from the session, never the client.
// Malformed objects are user errors.
func ParseUpload(objects []map[string]any, user uuid.UUID, srvID string, now time.Time) (*Batch, error) {
	batch := &Batch{}
	for i, obj := range objects {
		typ, _ := obj["type"].(string)
		var err error
		switch typ {
		case "newreport":
			err = parseNewReport(obj, batch, user, srvID, now)
		case "newtopic":
			err = parseNewTopic(obj, batch, user, srvID, now)
		case "newcomment":
			err = parseNewComment(obj, batch, user, srvID, now)
		default:
			err = fmt.Errorf("unrecognized object type (%v)", obj["type"])
		}
		if err != nil {
			return nil, errors.NewUserError(fmt.Sprintf("upload object %d: %v", i, err))
		}
	}
	return batch, nil
}

func parseNewReport(obj map[string]any, batch *Batch, user uuid.UUID, srvID string, now time.Time) error {
	version, err := parseUUID(obj, "version")
	if err != nil {
		return err
	}
	project, err := parseUUID(obj, "project")
	if err != nil {
		return err
	}
	report, err := parseUUID(obj, "report")
	if err != nil {
		return err
	}
	operation, err := parseJSON(obj, "operation", true)
	if err != nil {
		return err
	}
	modifies, err := parseJSON(obj, "modifies", false)
	if err != nil {
		return err
	}
	authortime, err := parseTime(obj, "authortime")
	if err != nil {
		return err
	}
	archivetime, err := parseOptTime(obj, "archivetime")
	if err != nil {
		return err
	}
	var reason *string
	if s, ok := obj["reason"].(string); ok {
		reason = &s
	}
	batch.Reports = append(batch.Reports, domain.Report{
		Version:        version,
		Report:         report,
		Project:        project,
		Operation:      operation,
		Modifies:       modifies,
		Reason:         reason,
		User:           user,
		SrvID:          srvID,
		SubmissionTime: now,
		AuthorTime:     authortime,
		ArchiveTime:    archivetime,
	})
	return nil
}

func parseNewTopic(obj map[string]any, batch *Batch, user uuid.UUID, srvID string, now time.Time) error {
	version, err := parseUUID(obj, "version")
	if err != nil {
		return err
	}
	project, err := parseUUID(obj, "project")
	if err != nil {
		return err
	}
	topic, err := parseUUID(obj, "topic")
	if err != nil {
		return err
	}
	name, ok := obj["name"].(string)
	if !ok {
		return fmt.Errorf("missing name")
	}
	links, err := parseJSON(obj, "links", false)
	if err != nil {
		return err
	}
	authortime, err := parseTime(obj, "authortime")
	if err != nil {
		return err
	}
	archivetime, err := parseOptTime(obj, "archivetime")
	if err != nil {
		return err
	}
	batch.Topics = append(batch.Topics, domain.Topic{
		Version:        version,
		Topic:          topic,
		Project:        project,
		User:           user,
		Name:           name,
		Links:          links,
		SrvID:          srvID,
		SubmissionTime: now,
		AuthorTime:     authortime,
		ArchiveTime:    archivetime,
	})
	return nil
}

func parseNewComment(obj map[string]any, batch *Batch, user uuid.UUID, srvID string, now time.Time) error {
	version, err := parseUUID(obj, "version")
	if err != nil {
		return err
	}
	project, err := parseUUID(obj, "project")
	if err != nil {
		return err
	}
	comment, err := parseUUID(obj, "comment")
	if err != nil {
		return err
	}
	topic, err := parseUUID(obj, "topic")
	if err != nil {
		return err
	}
	var parent *uuid.UUID
	if _, ok := obj["parent"].(string); ok {
		p, err := parseUUID(obj, "parent")
		if err != nil {
			return err
		}
		parent = &p
	}
	body, _ := obj["body"].(string)
	authortime, err := parseTime(obj, "authortime")
	if err != nil {
		return err
	}
	archivetime, err := parseOptTime(obj, "archivetime")
	if err != nil {
		return err
	}
	batch.Comments = append(batch.Comments, domain.Comment{
		Version:        version,
		Comment:        comment,
		Topic:          topic,
		Project:        project,
		User:           user,
		Parent:         parent,
		Body:           body,
		SrvID:          srvID,
		SubmissionTime: now,
		AuthorTime:     authortime,
		ArchiveTime:    archivetime,
	})
	return nil
}

func parseUUID(obj map[string]any, key string) (uuid.UUID, error) {
	s, ok := obj[key].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("missing %s", key)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s (%q)", key, s)
	}
	return id, nil
}

func parseTime(obj map[string]any, key string) (time.Time, error) {
	s, ok := obj[key].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("missing %s", key)
	}
	t, err := utils.ParseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %v", key, err)
	}
	return t, nil
}

func parseOptTime(obj map[string]any, key string) (*time.Time, error) {
	if obj[key] == nil {
		return nil, nil
	}
	t, err := parseTime(obj, key)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseJSON re-encodes a free-form JSON value for a jsonb column.
func parseJSON(obj map[string]any, key string, required bool) ([]byte, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		if required {
			return nil, fmt.Errorf("missing %s", key)
		}
		return nil, nil
	}
	return json.Marshal(v)
}
