package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAndUpdates(t *testing.T) {
	m := New()

	m.TxsAccepted.Inc()
	m.TxsRejected.WithLabelValues("admission").Inc()
	m.QueueSize.Set(3)
	m.ViewChanges.WithLabelValues("proxy_tail_timeout").Inc()
	m.BlockHeight.Set(42)
	m.PeersConnected.Set(4)

	require.Equal(t, float64(1), testutil.ToFloat64(m.TxsAccepted))
	require.Equal(t, float64(1), testutil.ToFloat64(m.TxsRejected.WithLabelValues("admission")))
	require.Equal(t, float64(3), testutil.ToFloat64(m.QueueSize))
	require.Equal(t, float64(42), testutil.ToFloat64(m.BlockHeight))
	require.Equal(t, float64(4), testutil.ToFloat64(m.PeersConnected))

	count, err := m.Registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, count)
}
