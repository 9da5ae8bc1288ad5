package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariobeauty/salon-scheduling/internal/appointments"
	"github.com/mariobeauty/salon-scheduling/internal/availability"
	"github.com/mariobeauty/salon-scheduling/internal/services"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	avail := availability.NewMemoryStore()
	staff := uuid.New()
	avail.AddStaff(staff, nil)
	avail.SetDailyWorkingHours(staff, 9*time.Hour, 17*time.Hour)

	catalog := services.NewMemoryCatalog()
	catalog.Add("Classic Manicure", 45*time.Minute, 15*time.Minute)

	store := appointments.NewMemoryStore(time.Second, nil)
	manager := appointments.NewManager(store, avail, catalog, nil, nil, nil, appointments.ManagerConfig{})

	reg := prometheus.NewRegistry()
	return New(&Config{
		AppointmentsHandler: appointments.NewHandler(manager, nil),
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
}

func TestRouterHealth(t *testing.T) {
	h := newRouter(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestRouterMetrics(t *testing.T) {
	h := newRouter(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterUnknownRoute(t *testing.T) {
	h := newRouter(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
