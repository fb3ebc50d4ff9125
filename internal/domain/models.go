package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is the billing/login entity. Its primary user is immutable.
type Account struct {
	Account        uuid.UUID `gorm:"column:account;primaryKey;type:uuid"`
	User           uuid.UUID `gorm:"column:user;type:uuid"`
	Name           string
	Email          string `gorm:"uniqueIndex"`
	PasswordHash   string
	SrvID          string    `gorm:"column:srv_id"`
	Seqno          int64     `gorm:"autoIncrement;uniqueIndex"`
	SubmissionTime time.Time `gorm:"column:submissiontime"`
}

// User belongs to exactly one account. Accounts can hold several users
// (e.g. after an account merge).
type User struct {
	User           uuid.UUID `gorm:"column:user;primaryKey;type:uuid"`
	Account        uuid.UUID `gorm:"column:account;type:uuid;index"`
	SrvID          string    `gorm:"column:srv_id"`
	Seqno          int64     `gorm:"autoIncrement;uniqueIndex"`
	SubmissionTime time.Time `gorm:"column:submissiontime"`
}

type Project struct {
	Project        uuid.UUID `gorm:"column:project;primaryKey;type:uuid"`
	Name           string
	User           uuid.UUID `gorm:"column:user;type:uuid"`
	SrvID          string    `gorm:"column:srv_id"`
	Seqno          int64     `gorm:"autoIncrement;uniqueIndex"`
	SubmissionTime time.Time `gorm:"column:submissiontime"`
}

// Permission rows form an append-only log; the current permission set is
// the replay of enable/disable events ordered by submission time. No row is
// ever updated.
type Permission struct {
	Version        uuid.UUID `gorm:"column:version;primaryKey;type:uuid"`
	User           uuid.UUID `gorm:"column:user;type:uuid;index"`
	Project        uuid.UUID `gorm:"column:project;type:uuid;index"`
	Kind           string
	Enable         bool
	Author         uuid.UUID `gorm:"column:author;type:uuid"`
	SrvID          string    `gorm:"column:srv_id"`
	Seqno          int64     `gorm:"autoIncrement;uniqueIndex"`
	SubmissionTime time.Time `gorm:"column:submissiontime"`
}

// Session is the websocket login grant. Valid is the only mutable field and
// only ever flips true -> false.
type Session struct {
	Session uuid.UUID `gorm:"column:session;primaryKey;type:uuid"`
	Token   []byte
	Account uuid.UUID `gorm:"column:account;type:uuid;index"`
	Expiry  time.Time
	Valid   bool `gorm:"default:true"`
}

// Report is one immutable version of a production report. Modifies holds
// the version ids this version supersedes (JSON array, null for originals);
// a report's current state is the set of versions no other version modifies.
type Report struct {
	Version        uuid.UUID  `gorm:"column:version;primaryKey;type:uuid"`
	Report         uuid.UUID  `gorm:"column:report;type:uuid;index"`
	Project        uuid.UUID  `gorm:"column:project;type:uuid;index"`
	Operation      []byte     `gorm:"type:jsonb"`
	Modifies       []byte     `gorm:"type:jsonb"`
	Reason         *string
	User           uuid.UUID  `gorm:"column:user;type:uuid"`
	SrvID          string     `gorm:"column:srv_id"`
	Seqno          int64      `gorm:"autoIncrement;uniqueIndex"`
	SubmissionTime time.Time  `gorm:"column:submissiontime"`
	AuthorTime     time.Time  `gorm:"column:authortime"`
	ArchiveTime    *time.Time `gorm:"column:archivetime"`
}

type Topic struct {
	Version        uuid.UUID  `gorm:"column:version;primaryKey;type:uuid"`
	Topic          uuid.UUID  `gorm:"column:topic;type:uuid;index"`
	Project        uuid.UUID  `gorm:"column:project;type:uuid;index"`
	User           uuid.UUID  `gorm:"column:user;type:uuid"`
	Name           string
	Links          []byte     `gorm:"type:jsonb"`
	SrvID          string     `gorm:"column:srv_id"`
	Seqno          int64      `gorm:"autoIncrement;uniqueIndex"`
	SubmissionTime time.Time  `gorm:"column:submissiontime"`
	AuthorTime     time.Time  `gorm:"column:authortime"`
	ArchiveTime    *time.Time `gorm:"column:archivetime"`
}

type Comment struct {
	Version        uuid.UUID  `gorm:"column:version;primaryKey;type:uuid"`
	Comment        uuid.UUID  `gorm:"column:comment;type:uuid;index"`
	Topic          uuid.UUID  `gorm:"column:topic;type:uuid;index"`
	Project        uuid.UUID  `gorm:"column:project;type:uuid;index"`
	User           uuid.UUID  `gorm:"column:user;type:uuid"`
	Parent         *uuid.UUID `gorm:"column:parent;type:uuid"`
	Body           string
	SrvID          string     `gorm:"column:srv_id"`
	Seqno          int64      `gorm:"autoIncrement;uniqueIndex"`
	SubmissionTime time.Time  `gorm:"column:submissiontime"`
	AuthorTime     time.Time  `gorm:"column:authortime"`
	ArchiveTime    *time.Time `gorm:"column:archivetime"`
}
