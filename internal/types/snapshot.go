package types

// DirectorySnapshotRecord is the persisted copy of the last good directory fetch.
// Directory is the partition key and FetchedAt (RFC3339) the sort key.
type DirectorySnapshotRecord struct {
	Directory   string       `dynamodbav:"Directory" json:"directory"`
	FetchedAt   string       `dynamodbav:"FetchedAt" json:"fetchedAt"`
	Source      string       `dynamodbav:"Source" json:"source"`
	Assignments []Assignment `dynamodbav:"Assignments" json:"assignments"`
	TTL         int64        `dynamodbav:"TTL,omitempty" json:"ttl,omitempty"`
}
