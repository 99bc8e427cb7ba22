package event

import (
	"encoding/json"
	"time"

	"salesboard/internal/core"
)

// UploadCompleted announces a finished ingestion so downstream
// consumers (report builders, cache warmers) can react. It carries the
// accept/reject counts only; consumers query the record collection for
// the data itself.
type UploadCompleted struct {
	Inserted  int       `json:"inserted"`
	Skipped   int       `json:"skipped"`
	Timestamp time.Time `json:"timestamp"`
}

func NewUploadCompleted(res core.UploadResult) *UploadCompleted {
	return &UploadCompleted{
		Inserted:  res.Inserted,
		Skipped:   res.Skipped,
		Timestamp: time.Now(),
	}
}

func (m *UploadCompleted) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func UploadCompletedFromJSON(data []byte) (*UploadCompleted, error) {
	var msg UploadCompleted
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
