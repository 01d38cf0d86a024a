package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmwatch/fmwatch/internal/models"
	"github.com/fmwatch/fmwatch/internal/transport"
	"github.com/fmwatch/fmwatch/test/testutil"
)

func TestServiceCommands(t *testing.T) {
	mock := transport.NewMockTransport()
	svc := NewService(mock, testutil.NewTestLogger())
	ctx := context.Background()

	require.NoError(t, svc.Copy(ctx, "/docs", "/backup", []string{"a.txt"}))
	require.NoError(t, svc.Move(ctx, "/tmp", "/docs", []string{"b.txt"}))
	require.NoError(t, svc.Suspend(ctx, "t1"))
	require.NoError(t, svc.Resume(ctx, "t1"))
	require.NoError(t, svc.Cancel(ctx, "t2"))
	require.NoError(t, svc.Delete(ctx, "t3"))

	assert.Equal(t, []string{
		"copy:/docs->/backup",
		"move:/tmp->/docs",
		"suspend:t1",
		"resume:t1",
		"cancel:t2",
		"delete:t3",
	}, mock.CommandLog())
}

func TestServicePropagatesCommandErrors(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.CommandErr = &models.APIError{Business: true, Message: "task not found"}
	svc := NewService(mock, testutil.NewTestLogger())

	err := svc.Suspend(context.Background(), "ghost")
	assert.True(t, models.IsBusinessError(err))
}
