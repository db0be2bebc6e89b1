package domain

import "time"

// Envelope is the decrypted form of a record value.
type Envelope struct {
	Document         []byte
	KeyEncryptionKey string
	EncryptedKey     []byte
	Algorithm        string
	IV               []byte
	Ciphertext       []byte
	Plaintext        []byte
}

// Extract is what the pipeline needs to know about a decoded record.
type Extract struct {
	Document       []byte
	Plaintext      []byte
	ID             string
	Action         DatabaseAction
	Timestamp      string
	TimestampField string
}

// Time parses Timestamp in the upstream layout, falling back to RFC 3339.
func (e Extract) Time() (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, e.Timestamp); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, e.Timestamp)
}

// TimestampLayout is the layout of the _lastModifiedDateTime family of fields.
const TimestampLayout = "2006-01-02T15:04:05.000-0700"

// EpochTimestamp is used when a record carries none of the timestamp fields.
const (
	EpochTimestamp      = "1980-01-01T00:00:00.000+0000"
	EpochTimestampField = "epoch"
)

type TransformationResult struct {
	Extract     Extract
	Transformed []byte
}

type FilterResult struct {
	TransformationResult
	PassThrough bool
}

// DeleteRequest identifies the target row to remove.
type DeleteRequest struct {
	Record SourceRecord
	ID     string
}
