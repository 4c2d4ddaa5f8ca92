package types

// PartitionKey is the (audio-source, speaker, batch) triple identifying one
// physical partition. Source and speaker are sanitized labels; Batch is either
// a zero-padded sequence id or an explicit label, opaque once assigned.
type PartitionKey struct {
	Source  string `json:"source"`
	Speaker string `json:"speaker"`
	Batch   string `json:"batch"`
}

// GroupKey is a partition key without the batch component. Rows grouped under
// one GroupKey share batch numbering.
type GroupKey struct {
	Source  string `json:"source"`
	Speaker string `json:"speaker"`
}

// WithBatch completes a group key into a partition key.
func (g GroupKey) WithBatch(batch string) PartitionKey {
	return PartitionKey{Source: g.Source, Speaker: g.Speaker, Batch: batch}
}

// String renders the key for log and error messages.
func (k PartitionKey) String() string {
	return k.Source + "/" + k.Speaker + "/" + k.Batch
}

// Group returns the key's (source, speaker) pair.
func (k PartitionKey) Group() GroupKey {
	return GroupKey{Source: k.Source, Speaker: k.Speaker}
}

// String renders the group key for log and error messages.
func (g GroupKey) String() string {
	return g.Source + "/" + g.Speaker
}

// Less orders group keys ascending by source, then speaker.
func (g GroupKey) Less(other GroupKey) bool {
	if g.Source != other.Source {
		return g.Source < other.Source
	}
	return g.Speaker < other.Speaker
}
