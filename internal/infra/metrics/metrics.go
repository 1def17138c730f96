package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	ChatStreamsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_streams_total",
		Help: "Количество потоковых ответов чата по результату",
	}, []string{"result"})

	ChatStreamFragments = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_stream_fragments_total",
		Help: "Количество полученных фрагментов ответа",
	})

	ChatFirstFragmentSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_first_fragment_seconds",
		Help:    "Время до первого фрагмента ответа",
		Buckets: prometheus.DefBuckets,
	})

	FeedbackSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedback_submissions_total",
		Help: "Отправки формы отзыва по результату",
	}, []string{"result"})

	DoctorsCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doctors_cache_total",
		Help: "Обращения к кэшу справочника врачей",
	}, []string{"result"})

	NotifierDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_deliveries_total",
		Help: "Доставка уведомлений об отзывах",
	}, []string{"result"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		ChatStreamsTotal,
		ChatStreamFragments,
		ChatFirstFragmentSeconds,
		FeedbackSubmissions,
		DoctorsCache,
		NotifierDeliveries,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// ObserveChatStream фиксирует результат потокового ответа: ok, rate_limited, usage_limit, canceled, error.
func ObserveChatStream(result string, fragments int, firstFragment time.Duration) {
	ChatStreamsTotal.WithLabelValues(result).Inc()
	if fragments > 0 {
		ChatStreamFragments.Add(float64(fragments))
	}
	if firstFragment > 0 {
		ChatFirstFragmentSeconds.Observe(firstFragment.Seconds())
	}
}

// IncFeedback увеличивает счётчик отправок отзыва.
func IncFeedback(result string) {
	FeedbackSubmissions.WithLabelValues(result).Inc()
}

// IncDoctorsCache фиксирует hit/miss/corrupt кэша врачей.
func IncDoctorsCache(result string) {
	DoctorsCache.WithLabelValues(result).Inc()
}

// IncNotifierDelivery фиксирует результат доставки уведомления.
func IncNotifierDelivery(result string) {
	NotifierDeliveries.WithLabelValues(result).Inc()
}
