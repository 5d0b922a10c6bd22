package otel

import (
	"time"

	hostmetrics "go.opentelemetry.io/contrib/instrumentation/host"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
)

// StartRuntimeMetrics starts Go runtime and host metrics collection on the
// configured meter provider. Memory stats are read at most once per interval.
func StartRuntimeMetrics(interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	opts := []runtime.Option{runtime.WithMinimumReadMemStatsInterval(interval)}
	if meterProvider != nil {
		opts = append(opts, runtime.WithMeterProvider(meterProvider))
	}
	if err := runtime.Start(opts...); err != nil {
		return err
	}

	var hostOpts []hostmetrics.Option
	if meterProvider != nil {
		hostOpts = append(hostOpts, hostmetrics.WithMeterProvider(meterProvider))
	}
	return hostmetrics.Start(hostOpts...)
}
