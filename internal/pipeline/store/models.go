package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status describes the final outcome of a publish attempt.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Metadata is the published description of an artifact.
type Metadata struct {
	Title       string   `json:"title"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
}

// ParamValue is one generation parameter: either a single value or a list.
// It marshals as a bare JSON string or a string array.
type ParamValue struct {
	Value  string
	Values []string
}

// IsList reports whether the parameter carries multiple values.
func (p ParamValue) IsList() bool {
	return p.Values != nil
}

func (p ParamValue) MarshalJSON() ([]byte, error) {
	if p.IsList() {
		return json.Marshal(p.Values)
	}
	return json.Marshal(p.Value)
}

func (p *ParamValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.Value = s
		p.Values = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	p.Value = ""
	p.Values = list
	return nil
}

// Params holds the generation parameters of an artifact, stored verbatim for
// audit and replay.
type Params map[string]ParamValue

// UploadRecord is the durable record of one publish attempt. ContentHash is
// unique across all records; the store enforces it.
type UploadRecord struct {
	ID            uuid.UUID `db:"id"`
	ContentHash   string    `db:"content_hash"`
	SecondaryHash string    `db:"secondary_hash"` // informational only
	Generator     string    `db:"generator"`
	Params        Params    `db:"params"`
	Meta          Metadata  `db:"metadata"`
	ArtifactPath  string    `db:"artifact_path"`
	SecondaryPath string    `db:"secondary_path"`
	Status        Status    `db:"status"`
	ErrorMessage  string    `db:"error_message"`
	CreatedAt     time.Time `db:"created_at"`
}

// DupCheck is the result of a duplicate probe for an artifact file.
type DupCheck struct {
	IsDuplicate bool
	Hash        string
	Existing    *UploadRecord
}
