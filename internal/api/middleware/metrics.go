// metrics.go — Prometheus HTTP метрики readflow.
// Регистрирует метрики: rf_http_requests_total, rf_http_request_duration_seconds.
// Бизнес-метрики (rf_books_total, rf_imported_bytes_total и др.) регистрируются
// здесь и обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rf_http_requests_total",
			Help: "Общее количество HTTP-запросов к readflow",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rf_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к readflow в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// BooksTotal — текущее количество книг в каталоге (gauge).
	BooksTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rf_books_total",
			Help: "Текущее количество книг в каталоге",
		},
		[]string{"status"},
	)

	// ImportedItemsTotal — количество элементов, прошедших конвейер импорта.
	ImportedItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rf_imported_items_total",
			Help: "Общее количество элементов, скопированных в библиотеку",
		},
		[]string{"source", "format"},
	)

	// ImportedBytesTotal — объём скопированных в библиотеку данных.
	ImportedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rf_imported_bytes_total",
			Help: "Общий объём данных, скопированных в библиотеку, в байтах",
		},
	)

	// DedupedItemsTotal — количество элементов, пропущенных как дубликаты.
	DedupedItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rf_deduped_items_total",
			Help: "Общее количество элементов, пропущенных как дубликаты",
		},
		[]string{"reason"},
	)

	// OperationsTotal — общее количество операций сервисного слоя.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rf_operations_total",
			Help: "Общее количество операций с библиотекой",
		},
		[]string{"operation", "result"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newStatusRecorder(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// statusRecorder — обёртка для перехвата статус-кода и объёма ответа.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int64
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет UUID-сегменты пути на {id} для предотвращения
// взрывного роста кардинальности метрик.
// /api/v1/books/a1b2c3d4-e5f6-7890-abcd-ef1234567890/content → /api/v1/books/{id}/content
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if len(s) == 36 {
			if _, err := uuid.Parse(s); err == nil {
				segments[i] = "{id}"
			}
		}
	}
	return strings.Join(segments, "/")
}
