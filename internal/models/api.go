package models

import "encoding/json"

// APIResponse is the server's command envelope. Code is the business flag:
// false means the request reached the server but was refused, and Message
// carries the user-facing reason.
type APIResponse struct {
	Code    bool            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// UploadResponse is returned by the upload endpoint. Result plays the same
// business-flag role as APIResponse.Code.
type UploadResponse struct {
	Result  bool   `json:"result"`
	Message string `json:"message"`
}

// PublicConfig is the server configuration exposed to clients.
type PublicConfig struct {
	MaxUploadSize int64 `json:"maxUploadSize"`
}

// LoginRequest starts a session.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CopyMoveRequest asks the server to start a bulk copy or move job. The
// resulting task is only ever observed through the update channels.
type CopyMoveRequest struct {
	IsCopy bool     `json:"isCopy"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Files  []string `json:"files"`
}

// ResolveConflictRequest submits a conflict decision for a blocked task.
// Remember applies the policy to all later conflicts in the same job.
type ResolveConflictRequest struct {
	TaskID   string         `json:"taskId"`
	Policy   ConflictPolicy `json:"policy"`
	Remember bool           `json:"remember"`
}
