package models

// TransferStatus is the local lifecycle state of an upload attempt.
type TransferStatus string

const (
	TransferWaiting   TransferStatus = "waiting"
	TransferUploading TransferStatus = "uploading"
	TransferSuccess   TransferStatus = "success"
	TransferError     TransferStatus = "error"
	TransferRejected  TransferStatus = "rejected"
)

// Terminal reports whether the item will never be dispatched again.
func (s TransferStatus) Terminal() bool {
	switch s {
	case TransferSuccess, TransferError, TransferRejected:
		return true
	}
	return false
}

// TransferItem is a single client-initiated upload attempt. Unlike Task it is
// born and owned locally; the server never reports it back.
type TransferItem struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Size         int64          `json:"size"`
	ParentPath   string         `json:"parentPath"`
	Progress     int            `json:"progress"`
	Status       TransferStatus `json:"status"`
	ErrorMessage string         `json:"errorMessage,omitempty"`

	// Speed is the instantaneous throughput estimate in bytes/sec,
	// sampled while Status is "uploading".
	Speed int64 `json:"speed"`
}
