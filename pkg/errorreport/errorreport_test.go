package errorreport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportKeepsCauses(t *testing.T) {
	r := New("controller", 4)
	base := errors.New("disk full")
	id := r.Report(fmt.Errorf("failed to commit: %w", base), "commit failed", "node", "alpha")

	rep, ok := r.Find(id)
	require.True(t, ok)
	assert.Equal(t, "controller", rep.Module)
	assert.Equal(t, "failed to commit: disk full", rep.Error)
	assert.Equal(t, []string{"disk full"}, rep.Causes)
	assert.Equal(t, map[string]string{"node": "alpha"}, rep.Context)
	assert.Len(t, id, 12)
}

func TestRecentIsBoundedNewestFirst(t *testing.T) {
	r := New("satellite", 3)
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, r.Report(fmt.Errorf("err %d", i), "failure"))
	}

	recent := r.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, ids[4], recent[0].ID)
	assert.Equal(t, ids[2], recent[2].ID)

	_, ok := r.Find(ids[0])
	assert.False(t, ok)
}

func TestReportPanic(t *testing.T) {
	r := New("controller", 0)
	id := r.ReportPanic("nil map", "handler panicked")

	rep, ok := r.Find(id)
	require.True(t, ok)
	assert.True(t, rep.Recovered)
	assert.Equal(t, "panic: nil map", rep.Error)
}
