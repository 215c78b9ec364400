package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"snaphound/internal/domain"
	"snaphound/internal/logging"
)

// Observer records coordinator metrics. Packages depend on this interface
// rather than on the Prometheus collectors so tests can run without them.
type Observer interface {
	ObservePush(name string)
	ObserveStaleEvent(name string)
	ObserveCatalogSize(size int)
	ObserveDispatch(mode domain.Mode)
	ObserveRPC(call string, err error, duration time.Duration)
	ObserveRPCRetry(call string)
	ObserveSubscriptionFailure()
	ObserveResourceResolved()
	ObserveResourceFailure()
}

// prometheusObserver implements Observer using the collectors in metrics.go
type prometheusObserver struct{}

// NewObserver creates an observer that records into the Prometheus collectors
func NewObserver() Observer {
	return prometheusObserver{}
}

func (prometheusObserver) ObservePush(name string) {
	PushMessagesTotal.WithLabelValues(name).Inc()
}

func (prometheusObserver) ObserveStaleEvent(name string) {
	StaleEventsTotal.WithLabelValues(name).Inc()
}

func (prometheusObserver) ObserveCatalogSize(size int) {
	CatalogSize.Set(float64(size))
}

func (prometheusObserver) ObserveDispatch(mode domain.Mode) {
	DispatchedRequestsTotal.WithLabelValues(mode.String()).Inc()
}

func (prometheusObserver) ObserveRPC(call string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	RPCRequestsTotal.WithLabelValues(call, status).Inc()
	RPCDuration.WithLabelValues(call).Observe(duration.Seconds())
}

func (prometheusObserver) ObserveRPCRetry(call string) {
	RPCRetriesTotal.WithLabelValues(call).Inc()
}

func (prometheusObserver) ObserveSubscriptionFailure() {
	SubscriptionFailuresTotal.Inc()
}

func (prometheusObserver) ObserveResourceResolved() {
	ResourcesResolvedTotal.Inc()
}

func (prometheusObserver) ObserveResourceFailure() {
	ResourceFailuresTotal.Inc()
}

// Nop is an Observer that records nothing
type Nop struct{}

func (Nop) ObservePush(string) {}
func (Nop) ObserveStaleEvent(string) {}
func (Nop) ObserveCatalogSize(int) {}
func (Nop) ObserveDispatch(domain.Mode) {}
func (Nop) ObserveRPC(string, error, time.Duration) {}
func (Nop) ObserveRPCRetry(string) {}
func (Nop) ObserveSubscriptionFailure() {}
func (Nop) ObserveResourceResolved() {}
func (Nop) ObserveResourceFailure() {}

// OrNop returns o, or a Nop observer when o is nil
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop{}
	}
	return o
}

// Serve exposes the default registry on addr until the server fails.
// An empty addr disables the endpoint.
func Serve(addr string) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Info("Serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Metrics server stopped: %v", err)
		}
	}()
	return srv
}
