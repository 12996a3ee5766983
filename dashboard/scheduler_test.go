package dashboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRefreshScheduler_RejectsBadSpec(t *testing.T) {
	ctrl, _ := newController(t, newStubBackend(), &gatedYield{}, Selection{})

	_, err := NewRefreshScheduler(ctrl, "every now and then", nil)
	assert.Error(t, err)

	rs, err := NewRefreshScheduler(ctrl, "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRefreshSpec, rs.spec)
}

func TestRefreshScheduler_RunNow(t *testing.T) {
	ctrl, _ := newController(t, newStubBackend(), &gatedYield{value: 1}, Selection{Scope: ScopeCompany})
	rs, err := NewRefreshScheduler(ctrl, "@every 1h", zap.NewNop())
	require.NoError(t, err)

	_, ok := rs.LastRun()
	assert.False(t, ok)

	run := rs.RunNow(context.Background())

	require.NoError(t, run.Err)
	assert.Equal(t, uint64(1), run.Seq)
	last, ok := rs.LastRun()
	require.True(t, ok)
	assert.Equal(t, run.Seq, last.Seq)
	assert.Equal(t, 1, rs.Runs())
}

func TestRefreshScheduler_StartStop(t *testing.T) {
	ctrl, _ := newController(t, newStubBackend(), &gatedYield{}, Selection{})
	rs, err := NewRefreshScheduler(ctrl, "@every 1h", nil)
	require.NoError(t, err)

	rs.Start()
	rs.Start()
	rs.Stop()
	rs.Stop()

	assert.Equal(t, 0, rs.Runs())
}
