package amqp

import (
	"encoding/json"
	"time"
)

// ReconcileMessage asks the worker to recompute one user's budget
// figures for one year. It carries only the identifiers; the worker
// reads everything else from the database.
type ReconcileMessage struct {
	UserID    int64     `json:"user_id"`
	Year      int       `json:"year"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReconcileMessage(userID int64, year int) *ReconcileMessage {
	return &ReconcileMessage{
		UserID:    userID,
		Year:      year,
		Timestamp: time.Now(),
	}
}

func (m *ReconcileMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReconcileMessageFromJSON(data []byte) (*ReconcileMessage, error) {
	var msg ReconcileMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
