package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRegisterOnInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncViolation("TAB_SWITCH")
	m.IncViolation("TAB_SWITCH")
	m.AddDropped("leaderboard", 3)
	m.IncConnections()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ViolationsReported.WithLabelValues("TAB_SWITCH")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.MessagesDropped.WithLabelValues("leaderboard")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionsTotal))

	// A second set on a separate registry must not collide.
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}
