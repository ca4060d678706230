package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "soltracker")

	m.Events.WithLabelValues(Decoded).Inc()
	m.Notifications.WithLabelValues(Failed).Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues(Decoded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Notifications.WithLabelValues(Failed)))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	// registering twice on the same registry must fail
	assert.Panics(t, func() { New(reg, "soltracker") })
}

func TestNewNilRegisterer(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil, "a")
		New(nil, "a")
	})
}
