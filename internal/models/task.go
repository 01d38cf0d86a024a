package models

// TaskStatus is the server-reported lifecycle state of a background job.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusStarting  TaskStatus = "starting"
	StatusRunning   TaskStatus = "running"
	StatusSuspended TaskStatus = "suspended"
	StatusCompleted TaskStatus = "completed"
	StatusCancelled TaskStatus = "cancelled"
	StatusFailed    TaskStatus = "failed"
)

// Terminal reports whether a task in this status can never progress again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// ConflictPolicy tells the server how to handle a colliding file.
type ConflictPolicy string

const (
	PolicyAsk       ConflictPolicy = "ask"
	PolicyAbort     ConflictPolicy = "abort"
	PolicySkip      ConflictPolicy = "skip"
	PolicyRename    ConflictPolicy = "rename"
	PolicyOverwrite ConflictPolicy = "overwrite"
)

// Valid reports whether the policy can be submitted as a conflict decision.
// "ask" is the server's internal default and is not submittable.
func (p ConflictPolicy) Valid() bool {
	switch p {
	case PolicyAbort, PolicySkip, PolicyRename, PolicyOverwrite:
		return true
	}
	return false
}

// ConflictFileInfo describes one side of a name collision.
type ConflictFileInfo struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ModifyTime  int64  `json:"modifyTime"`
	IsDirectory bool   `json:"isDirectory"`
}

// ConflictInfo is embedded in a task while the server waits for a decision.
type ConflictInfo struct {
	NeedConfirm    bool             `json:"needConfirm"`
	ConflictPolicy ConflictPolicy   `json:"conflictPolicy,omitempty"`
	SrcFile        ConflictFileInfo `json:"srcFile"`
	DstFile        ConflictFileInfo `json:"dstFile"`
}

// Task is a server-executed bulk copy/move job as seen by the client.
// All business fields are server-authoritative; only Progress is derived
// locally. Timestamps are unix seconds.
type Task struct {
	ID        string     `json:"id"`
	Agent     string     `json:"agent,omitempty"`
	CreatedAt int64      `json:"createdAt"`
	StartedAt int64      `json:"startedAt"`
	UpdatedAt int64      `json:"updatedAt"`
	Status    TaskStatus `json:"status"`
	Type      string     `json:"type,omitempty"`
	Error     string     `json:"error,omitempty"`

	IsCopy bool     `json:"isCopy"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Files  []string `json:"files,omitempty"`

	ConflictInfo *ConflictInfo `json:"conflictInfo,omitempty"`

	CurrentFile           string `json:"currentFile,omitempty"`
	CurrentFileSize       int64  `json:"currentFileSize"`
	CurrentFileCopiedSize int64  `json:"currentFileCopiedSize"`
	TotalFiles            int64  `json:"totalFiles"`
	CopiedFiles           int64  `json:"copiedFiles"`
	TotalSize             int64  `json:"totalSize"`
	CopiedSize            int64  `json:"copiedSize"`

	// Progress is derived client-side, 0-100.
	Progress int `json:"progress"`
}

// DeriveProgress recomputes Progress from the copied counters. Size counters
// are preferred; file counts are the fallback when no sizes were reported.
// The result is always clamped to [0,100].
func (t *Task) DeriveProgress() {
	var pct int
	switch {
	case t.TotalSize > 0:
		pct = int(t.CopiedSize * 100 / t.TotalSize)
	case t.TotalFiles > 0:
		pct = int(t.CopiedFiles * 100 / t.TotalFiles)
	case t.Status == StatusCompleted:
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	t.Progress = pct
}

// TaskPatch is a partial task update from either channel. Pointer fields
// distinguish "omitted" from "zero": omitted fields preserve the prior
// record's value during a merge.
type TaskPatch struct {
	ID        string      `json:"id"`
	Agent     *string     `json:"agent,omitempty"`
	CreatedAt *int64      `json:"createdAt,omitempty"`
	StartedAt *int64      `json:"startedAt,omitempty"`
	UpdatedAt *int64      `json:"updatedAt,omitempty"`
	Status    *TaskStatus `json:"status,omitempty"`
	Type      *string     `json:"type,omitempty"`
	Error     *string     `json:"error,omitempty"`

	IsCopy *bool     `json:"isCopy,omitempty"`
	Source *string   `json:"source,omitempty"`
	Target *string   `json:"target,omitempty"`
	Files  *[]string `json:"files,omitempty"`

	ConflictInfo *ConflictInfo `json:"conflictInfo,omitempty"`

	CurrentFile           *string `json:"currentFile,omitempty"`
	CurrentFileSize       *int64  `json:"currentFileSize,omitempty"`
	CurrentFileCopiedSize *int64  `json:"currentFileCopiedSize,omitempty"`
	TotalFiles            *int64  `json:"totalFiles,omitempty"`
	CopiedFiles           *int64  `json:"copiedFiles,omitempty"`
	TotalSize             *int64  `json:"totalSize,omitempty"`
	CopiedSize            *int64  `json:"copiedSize,omitempty"`
}

// Apply overwrites the fields the patch carries and leaves the rest alone.
// Field-level replace, not deep merge: a present files value replaces the
// previous one wholesale. conflictInfo is the one non-preserved field: it
// mirrors the wire, so a record that no longer carries it has had its
// conflict resolved and absence clears it.
func (p *TaskPatch) Apply(t *Task) {
	if p.Agent != nil {
		t.Agent = *p.Agent
	}
	if p.CreatedAt != nil {
		t.CreatedAt = *p.CreatedAt
	}
	if p.StartedAt != nil {
		t.StartedAt = *p.StartedAt
	}
	if p.UpdatedAt != nil {
		t.UpdatedAt = *p.UpdatedAt
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Error != nil {
		t.Error = *p.Error
	}
	if p.IsCopy != nil {
		t.IsCopy = *p.IsCopy
	}
	if p.Source != nil {
		t.Source = *p.Source
	}
	if p.Target != nil {
		t.Target = *p.Target
	}
	if p.Files != nil {
		t.Files = *p.Files
	}
	if p.ConflictInfo != nil {
		info := *p.ConflictInfo
		t.ConflictInfo = &info
	} else {
		t.ConflictInfo = nil
	}
	if p.CurrentFile != nil {
		t.CurrentFile = *p.CurrentFile
	}
	if p.CurrentFileSize != nil {
		t.CurrentFileSize = *p.CurrentFileSize
	}
	if p.CurrentFileCopiedSize != nil {
		t.CurrentFileCopiedSize = *p.CurrentFileCopiedSize
	}
	if p.TotalFiles != nil {
		t.TotalFiles = *p.TotalFiles
	}
	if p.CopiedFiles != nil {
		t.CopiedFiles = *p.CopiedFiles
	}
	if p.TotalSize != nil {
		t.TotalSize = *p.TotalSize
	}
	if p.CopiedSize != nil {
		t.CopiedSize = *p.CopiedSize
	}
}

// NewTask builds a fresh record from a patch for a task seen the first time.
func (p *TaskPatch) NewTask() *Task {
	t := &Task{ID: p.ID}
	p.Apply(t)
	t.DeriveProgress()
	return t
}
