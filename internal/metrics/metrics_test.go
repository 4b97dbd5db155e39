package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRequest("/login", http.MethodPost, http.StatusOK, 20*time.Millisecond)
	m.ObserveSession(SessionRefreshed)
	m.ObserveSession(SessionRefreshed)
	m.ObserveSignIn(SignInInvalidCredentials)
	m.ObserveSignOut(false)
	m.ObserveProviderCall("gotrue", "refresh", errors.New("boom"))
	m.SetBreakerState("gotrue", 2)
	m.ObserveDirectoryError()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/login", "POST", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Sessions.WithLabelValues(SessionRefreshed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SignIns.WithLabelValues(SignInInvalidCredentials)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SignOuts.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("gotrue", "refresh", "false")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("gotrue")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DirectoryErrs))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("/", http.MethodGet, http.StatusFound, time.Millisecond)
		m.ObserveSession(SessionValid)
		m.ObserveSignIn(SignInSuccess)
		m.ObserveSignOut(true)
		m.ObserveProviderCall("static", "sign_in", nil)
		m.SetBreakerState("x", 0)
		m.ObserveDirectoryError()
	})

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveSignIn(SignInSuccess)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "depo_sign_ins_total")
	assert.Contains(t, w.Body.String(), `result="success"`)
}
