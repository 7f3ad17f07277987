package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRegistered(t *testing.T) {
	before := testutil.ToFloat64(MemberUpgradesTotal)
	MemberUpgradesTotal.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(MemberUpgradesTotal))
}

func TestHandlerServesMetrics(t *testing.T) {
	StepDownsTotal.Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "vaultmgmt_step_downs_total")
}
