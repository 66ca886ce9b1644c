package amqp

import (
	"encoding/json"
	"time"
)

// PlanRequestMessage is the lightweight wake-up signal for the plan worker.
// It carries only the goal ID and a version; the worker loads the goal and
// the durable plan request from the database.
type PlanRequestMessage struct {
	GoalID    int64     `json:"goal_id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPlanRequestMessage creates a message for the given goal and version.
func NewPlanRequestMessage(goalID, version int64) *PlanRequestMessage {
	return &PlanRequestMessage{
		GoalID:    goalID,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PlanRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PlanRequestMessageFromJSON creates a message from JSON bytes
func PlanRequestMessageFromJSON(data []byte) (*PlanRequestMessage, error) {
	var msg PlanRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
