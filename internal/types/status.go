package types

// Status is a type for the lifecycle status of a resource in the database.
// This is used to track soft-archival and deletion and to scope queries.
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)

func (s Status) String() string {
	return string(s)
}
