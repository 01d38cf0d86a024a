package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string            { return &s }
func i64Ptr(n int64) *int64              { return &n }
func statusPtr(s TaskStatus) *TaskStatus { return &s }

func TestTaskStatusTerminal(t *testing.T) {
	terminal := []TaskStatus{StatusCompleted, StatusCancelled, StatusFailed}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "status %s", s)
	}

	active := []TaskStatus{StatusPending, StatusStarting, StatusRunning, StatusSuspended}
	for _, s := range active {
		assert.False(t, s.Terminal(), "status %s", s)
	}
}

func TestConflictPolicyValid(t *testing.T) {
	for _, p := range []ConflictPolicy{PolicyAbort, PolicySkip, PolicyRename, PolicyOverwrite} {
		assert.True(t, p.Valid(), "policy %s", p)
	}
	assert.False(t, PolicyAsk.Valid(), "ask is not a submittable decision")
	assert.False(t, ConflictPolicy("merge").Valid())
	assert.False(t, ConflictPolicy("").Valid())
}

func TestDeriveProgress(t *testing.T) {
	tests := []struct {
		name string
		task Task
		want int
	}{
		{
			name: "from sizes",
			task: Task{TotalSize: 4096, CopiedSize: 1024},
			want: 25,
		},
		{
			name: "sizes preferred over counts",
			task: Task{TotalSize: 200, CopiedSize: 100, TotalFiles: 4, CopiedFiles: 4},
			want: 50,
		},
		{
			name: "count fallback",
			task: Task{TotalFiles: 4, CopiedFiles: 1},
			want: 25,
		},
		{
			name: "no counters",
			task: Task{Status: StatusRunning},
			want: 0,
		},
		{
			name: "completed without counters",
			task: Task{Status: StatusCompleted},
			want: 100,
		},
		{
			name: "copied beyond total clamps to 100",
			task: Task{TotalSize: 100, CopiedSize: 150},
			want: 100,
		},
		{
			name: "negative copied clamps to 0",
			task: Task{TotalSize: 100, CopiedSize: -10},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.task.DeriveProgress()
			assert.Equal(t, tt.want, tt.task.Progress)
		})
	}
}

func TestPatchApplyPreservesOmittedFields(t *testing.T) {
	task := Task{
		ID:         "t1",
		Status:     StatusRunning,
		Source:     "/src",
		Target:     "/dst",
		TotalSize:  4096,
		CopiedSize: 1024,
	}

	patch := TaskPatch{
		ID:         "t1",
		CopiedSize: i64Ptr(2048),
	}
	patch.Apply(&task)

	assert.Equal(t, int64(2048), task.CopiedSize)
	assert.Equal(t, StatusRunning, task.Status, "omitted status preserved")
	assert.Equal(t, "/src", task.Source)
	assert.Equal(t, int64(4096), task.TotalSize)
}

func TestPatchApplyReplacesConflictInfoWholesale(t *testing.T) {
	task := Task{
		ID: "t1",
		ConflictInfo: &ConflictInfo{
			NeedConfirm: true,
			SrcFile:     ConflictFileInfo{Name: "a.txt", Size: 10},
		},
	}

	patch := TaskPatch{
		ID:           "t1",
		ConflictInfo: &ConflictInfo{NeedConfirm: false},
	}
	patch.Apply(&task)

	require.NotNil(t, task.ConflictInfo)
	assert.False(t, task.ConflictInfo.NeedConfirm)
	assert.Empty(t, task.ConflictInfo.SrcFile.Name, "replaced, not merged")
}

func TestPatchApplyClearsOmittedConflictInfo(t *testing.T) {
	task := Task{
		ID:     "t1",
		Status: StatusRunning,
		ConflictInfo: &ConflictInfo{
			NeedConfirm: true,
			SrcFile:     ConflictFileInfo{Name: "a.txt"},
		},
	}

	// A record without conflictInfo means the conflict is gone; it must not
	// linger from the previous merge.
	patch := TaskPatch{
		ID:        "t1",
		UpdatedAt: i64Ptr(110),
	}
	patch.Apply(&task)

	assert.Nil(t, task.ConflictInfo)
	assert.Equal(t, StatusRunning, task.Status)
}

func TestPatchApplyIsIdempotent(t *testing.T) {
	patch := TaskPatch{
		ID:         "t1",
		Status:     statusPtr(StatusRunning),
		Source:     strPtr("/src"),
		CopiedSize: i64Ptr(512),
		TotalSize:  i64Ptr(1024),
	}

	task := patch.NewTask()
	first := *task
	patch.Apply(task)
	task.DeriveProgress()

	assert.Equal(t, first, *task)
}

func TestPatchUnmarshalDistinguishesOmittedFromZero(t *testing.T) {
	var withZero, without TaskPatch

	require.NoError(t, json.Unmarshal([]byte(`{"id":"t1","copiedSize":0}`), &withZero))
	require.NoError(t, json.Unmarshal([]byte(`{"id":"t1"}`), &without))

	require.NotNil(t, withZero.CopiedSize)
	assert.Equal(t, int64(0), *withZero.CopiedSize)
	assert.Nil(t, without.CopiedSize)
}

func TestTaskJSONRoundTrip(t *testing.T) {
	raw := `{
		"id": "abc",
		"createdAt": 1700000100,
		"updatedAt": 1700000200,
		"status": "running",
		"isCopy": true,
		"source": "/docs",
		"target": "/backup",
		"files": ["a.txt"],
		"conflictInfo": {
			"needConfirm": true,
			"conflictPolicy": "ask",
			"srcFile": {"name": "a.txt", "size": 10, "modifyTime": 1, "isDirectory": false},
			"dstFile": {"name": "a.txt", "size": 20, "modifyTime": 2, "isDirectory": false}
		},
		"currentFile": "a.txt",
		"totalFiles": 1,
		"copiedFiles": 0,
		"totalSize": 10,
		"copiedSize": 5
	}`

	var patch TaskPatch
	require.NoError(t, json.Unmarshal([]byte(raw), &patch))

	task := patch.NewTask()
	assert.Equal(t, "abc", task.ID)
	assert.Equal(t, StatusRunning, task.Status)
	assert.True(t, task.IsCopy)
	require.NotNil(t, task.ConflictInfo)
	assert.True(t, task.ConflictInfo.NeedConfirm)
	assert.Equal(t, "a.txt", task.ConflictInfo.SrcFile.Name)
	assert.Equal(t, 50, task.Progress)
}
