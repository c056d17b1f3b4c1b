package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

func TestRetrainingCmd(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "retraining")

	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, ts.retraining.lastWindow)
	assert.Contains(t, out, "Retraining plan TRAIN-20260302-093000")
	assert.Contains(t, out, "Deviations since 2026-01-31: 2")
	assert.Contains(t, out, "Affected roles: operators, supervisors")
	assert.Contains(t, out, "Program 1: aseptic gowning refresher [1]")
	assert.Contains(t, out, "[1] sop-014.md")
}

func TestRetrainingCmd_JSON(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "retraining", "--days", "14", "--json")

	require.NoError(t, err)
	assert.Equal(t, 14*24*time.Hour, ts.retraining.lastWindow)
	var got domain.RetrainingPlan
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"dev-1", "dev-7"}, got.DeviationIDs)
}

func TestRetrainingCmd_NoModel(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.retraining.err = domain.ErrLLMUnavailable

	_, err := execute(t, "retraining")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestRetrainingCmd_NotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	SetServices(&Services{})

	_, err := execute(t, "retraining")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retraining service not configured")
}

func TestRecallCmd(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "recall", "glove change skipped")

	require.NoError(t, err)
	assert.Equal(t, "glove change skipped", ts.retraining.lastQuery)
	assert.Equal(t, 90*24*time.Hour, ts.retraining.lastWindow)
	assert.Equal(t, 3, ts.retraining.lastK)
	assert.Contains(t, out, "1. 0.91  [major/aseptic technique] 2026-03-02  dev-1")
	assert.Contains(t, out, "   Operator skipped the glove change")
}

func TestRecallCmd_Flags(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "recall", "-k", "5", "--days", "30", "--json", "gloves")

	require.NoError(t, err)
	assert.Equal(t, 5, ts.retraining.lastK)
	assert.Equal(t, 30*24*time.Hour, ts.retraining.lastWindow)
	var got []domain.ScoredDeviation
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.InDelta(t, 0.91, got[0].Score, 1e-9)
}

func TestRecallCmd_NoMatches(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.retraining.matches = nil

	out, err := execute(t, "recall", "gloves")

	require.NoError(t, err)
	assert.Contains(t, out, "No similar deviations recorded.")
}

func TestRecallCmd_InvalidK(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "recall", "-k", "1000", "gloves")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "-k must be between 1 and 100")
}
