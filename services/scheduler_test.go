package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestStartMaintenanceScheduler(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched, err := StartMaintenanceScheduler(ctx, env.Players, env.Settlement, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { require.NoError(t, sched.Shutdown()) }()

	var names []string
	for _, job := range sched.Jobs() {
		names = append(names, job.Name())
	}
	assert.ElementsMatch(t, []string{"ban-expiry-sweep", "ledger-reconciliation"}, names)
}
