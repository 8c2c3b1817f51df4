package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordRPCCall("GetLatestBlockhash", "success", "devnet", 0.1)
		m.RecordWalletOperation("connect", nil, 0.1)
		m.RecordTransactionBuilt("transfer", 1)
		m.RecordSubmission("success")
		m.RecordATACreated()
		m.RecordHTTPRequest("/health", "GET", 200, 0.01)
		m.RecordSSEConnectionChange(1)
		m.RecordSSEEventSent("submission")
		m.RecordNATSPublish("submissions.x", "success", 0.01)
	})
}

func TestRecordSubmissionAndBuild(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTransactionBuilt("create_mint", 3)
	m.RecordTransactionBuilt("create_mint", 3)
	m.RecordSubmission("success")
	m.RecordSubmission("signing")
	m.RecordATACreated()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transactionsBuiltTotal.WithLabelValues("create_mint")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactionsSubmittedTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactionsSubmittedTotal.WithLabelValues("signing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ataCreatedTotal))
}

func TestRecordWalletOperation_Status(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordWalletOperation("sign_and_send", nil, 0.2)
	m.RecordWalletOperation("sign_and_send", errors.New("rejected"), 0.2)
	m.RecordWalletOperation("sign_and_send", errors.New("rejected"), 0.2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.walletOperationsTotal.WithLabelValues("sign_and_send", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.walletOperationsTotal.WithLabelValues("sign_and_send", "error")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	handler := HTTPMetricsMiddleware(m, "/api/v1/transfers")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/transfers", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/v1/transfers", "POST", "4xx")))
}

func TestStatusCodeToString(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToString(201))
	assert.Equal(t, "3xx", statusCodeToString(302))
	assert.Equal(t, "4xx", statusCodeToString(422))
	assert.Equal(t, "5xx", statusCodeToString(502))
	assert.Equal(t, "unknown", statusCodeToString(99))
}
