package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-proc-approvals/internal/repository/memory"
)

func newMatrixService() *ApprovalMatrixService {
	return NewApprovalMatrixService(memory.NewMatrixStore(memory.New()), logger.Nop())
}

func TestApprovalMatrixLevelValidation(t *testing.T) {
	s := newMatrixService()

	tests := []struct {
		name  string
		in    LevelInput
		field string
	}{
		{"zero level number", LevelInput{Name: "Manager"}, "level_number"},
		{"blank name", LevelInput{LevelNumber: 1, Name: " "}, "name"},
		{"negative min", LevelInput{LevelNumber: 1, Name: "Manager", MinAmount: -1}, "min_amount"},
		{"max not above min", LevelInput{LevelNumber: 1, Name: "Manager", MinAmount: 500, MaxAmount: ptr(int64(500))}, "max_amount"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateLevel(context.Background(), tt.in)
			require.Error(t, err)
			var appErr *errors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, errors.ErrCodeValidation, appErr.Code)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestApprovalMatrixResolveLevel(t *testing.T) {
	s := newMatrixService()
	ctx := context.Background()

	exec, err := s.CreateLevel(ctx, LevelInput{LevelNumber: 3, Name: "Executive", MinAmount: 1_000_000})
	require.NoError(t, err)
	mgrLevel, err := s.CreateLevel(ctx, LevelInput{LevelNumber: 1, Name: "Manager", MaxAmount: ptr(int64(100_000))})
	require.NoError(t, err)
	director, err := s.CreateLevel(ctx, LevelInput{LevelNumber: 2, Name: "Director", MinAmount: 100_000, MaxAmount: ptr(int64(1_000_000))})
	require.NoError(t, err)

	_, err = s.CreateEntry(ctx, EntryInput{LevelID: director.ID, ApproverID: "cfo", SequenceOrder: 2})
	require.NoError(t, err)
	_, err = s.CreateEntry(ctx, EntryInput{LevelID: director.ID, ApproverID: "dir-1", Department: ptr("IT"), SequenceOrder: 1})
	require.NoError(t, err)

	levels, err := s.ListLevels(ctx)
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"Manager", "Director", "Executive"}, []string{levels[0].Name, levels[1].Name, levels[2].Name})

	tests := []struct {
		amount  int64
		levelID string
		entries int
	}{
		{0, mgrLevel.ID, 0},
		{99_999, mgrLevel.ID, 0},
		{100_000, director.ID, 2},
		{5_000_000, exec.ID, 0},
	}
	for _, tt := range tests {
		resolved, err := s.ResolveLevel(ctx, tt.amount)
		require.NoError(t, err, "amount %d", tt.amount)
		assert.Equal(t, tt.levelID, resolved.Level.ID, "amount %d", tt.amount)
		assert.Len(t, resolved.Entries, tt.entries)
	}

	resolved, err := s.ResolveLevel(ctx, 250_000)
	require.NoError(t, err)
	assert.Equal(t, "dir-1", resolved.Entries[0].ApproverID)

	_, err = s.ResolveLevel(ctx, -5)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}

func TestApprovalMatrixUpdateAndDelete(t *testing.T) {
	s := newMatrixService()
	ctx := context.Background()

	level, err := s.CreateLevel(ctx, LevelInput{LevelNumber: 1, Name: "Manager", MaxAmount: ptr(int64(100))})
	require.NoError(t, err)
	entry, err := s.CreateEntry(ctx, EntryInput{LevelID: level.ID, ApproverID: "mgr-1", SequenceOrder: 1})
	require.NoError(t, err)

	updated, err := s.UpdateLevel(ctx, level.ID, LevelInput{LevelNumber: 1, Name: "Line manager", MaxAmount: ptr(int64(200))})
	require.NoError(t, err)
	assert.Equal(t, "Line manager", updated.Name)
	assert.Equal(t, level.CreatedAt, updated.CreatedAt)

	_, err = s.UpdateLevel(ctx, "missing", LevelInput{LevelNumber: 1, Name: "x"})
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	_, err = s.ResolveLevel(ctx, 150)
	require.NoError(t, err)

	require.NoError(t, s.DeleteEntry(ctx, entry.ID))
	assert.True(t, errors.Is(s.DeleteEntry(ctx, entry.ID), errors.ErrCodeNotFound))

	require.NoError(t, s.DeleteLevel(ctx, level.ID))
	_, err = s.GetLevel(ctx, level.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	_, err = s.ResolveLevel(ctx, 150)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	_, err = s.CreateEntry(ctx, EntryInput{LevelID: level.ID, ApproverID: "mgr-1", SequenceOrder: 0})
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}
