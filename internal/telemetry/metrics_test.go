package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMetrics_Singleton(t *testing.T) {
	m := GetMetrics()
	require.NotNil(t, m)
	assert.Same(t, m, GetMetrics())

	assert.NotNil(t, m.APIRequestsTotal)
	assert.NotNil(t, m.TokenRefreshTotal)
	assert.NotNil(t, m.SessionExpiredTotal)
	assert.NotNil(t, m.PermissionLoadsTotal)
	assert.NotNil(t, m.RouteDecisionsTotal)
}
