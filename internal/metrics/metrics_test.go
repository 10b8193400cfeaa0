package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(jobsTotal.WithLabelValues("completed"))
	JobFinished("Completed")
	assert.Equal(t, before+1, testutil.ToFloat64(jobsTotal.WithLabelValues("completed")))

	FetchAttempt("", "transient")
	assert.GreaterOrEqual(t, testutil.ToFloat64(fetchAttempts.WithLabelValues("unknown", "transient")), 1.0)
}

func TestMustRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		MustRegister()
		MustRegister()
	})
}
