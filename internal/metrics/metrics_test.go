package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation(OperationCommit, OutcomeDataChanged)
	m.ObserveOperation(OperationCommit, OutcomeDataChanged)
	m.ObserveOperation(OperationDelete, OutcomeFailed)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues(OperationCommit, OutcomeDataChanged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(OperationDelete, OutcomeFailed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.operations.WithLabelValues(OperationUpload, OutcomeStored)))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveOperation(OperationUpload, OutcomeStored)
	m.ObserveUpload(2048)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `coverimage_operations_total{operation="upload",outcome="stored"} 1`)
	assert.Contains(t, string(body), "coverimage_upload_bytes_count 1")
}
