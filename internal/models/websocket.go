package models

import "encoding/json"

// PushType identifies a push-channel envelope.
type PushType string

const (
	// Server to client
	PushTaskInfo    PushType = "taskInfo"
	PushTaskDeleted PushType = "taskDeleted"
	PushPong        PushType = "pong"

	// Client to server
	PushPing PushType = "ping"
)

// PushEnvelope is the tagged wire envelope on the push channel. Data holds
// a task record for "taskInfo" and a bare task id string for "taskDeleted".
type PushEnvelope struct {
	Type PushType        `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}
