package model

import "time"

// AnonymousReporterName replaces the reporter's name on anonymous issues.
const AnonymousReporterName = "Anonymous"

// Issue is a single reported problem.
type Issue struct {
	ID           int64
	ReporterID   int64
	Title        string
	Description  string
	Category     string
	Anonymous    bool
	Status       Status
	Acknowledged bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Assignment permanently binds an issue to one resolver.
type Assignment struct {
	IssueID    int64
	ResolverID int64
	AssignedAt time.Time
}

// Solution is the resolver's free-text resolution of an issue.
type Solution struct {
	ID         int64
	IssueID    int64
	ResolverID int64
	Text       string
	ResolvedAt time.Time
	UpdatedAt  time.Time
}

// StatusLogEntry is one immutable row of an issue's audit trail.
type StatusLogEntry struct {
	ID        int64
	IssueID   int64
	Status    Status
	ActorRole Role
	Remark    string
	CreatedAt time.Time
}

// Attachment references an evidence object held by the blob store.
type Attachment struct {
	ID          int64
	IssueID     int64
	ObjectKey   string
	URL         string
	FileName    string
	ContentType string
	SizeBytes   int64
	Checksum    string
	CreatedAt   time.Time
}

// AttachmentUpload is one evidence file submitted with an issue.
type AttachmentUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Size returns the payload length in bytes.
func (u AttachmentUpload) Size() int64 {
	return int64(len(u.Data))
}

// Resolver is the directory entry of a resolver.
type Resolver struct {
	ID          int64
	Name        string
	Designation string
}
