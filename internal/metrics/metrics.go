// internal/metrics/metrics.go
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MysteriaLV/modbus-alert/internal/poller"
)

var pollResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "modbus_alert",
	Name:      "poll_results_total",
	Help:      "Completed polls by device address and outcome.",
}, []string{"address", "outcome"})

var deviceUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "modbus_alert",
	Name:      "device_up",
	Help:      "1 if the last poll of the device succeeded.",
}, []string{"address"})

var transportErrors = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "modbus_alert",
	Name:      "transport_errors",
	Help:      "Failure counter reported by the bus transport.",
})

var alarmPulses = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "modbus_alert",
	Subsystem: "alarm",
	Name:      "pulses_total",
	Help:      "Alarm patterns started, by device address.",
}, []string{"address"})

var alarmSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "modbus_alert",
	Subsystem: "alarm",
	Name:      "suppressed_total",
	Help:      "Failures not signalled because the acknowledgement switch was released.",
}, []string{"address"})

func label(addr uint8) string { return strconv.Itoa(int(addr)) }

// Observer records poll results. It is a poller.ResultHandler.
type Observer struct{}

func (Observer) HandleResult(res poller.Result) {
	addr := label(res.Address)
	pollResults.WithLabelValues(addr, res.Outcome.String()).Inc()
	if res.Outcome == poller.Responding {
		deviceUp.WithLabelValues(addr).Set(1)
	} else {
		deviceUp.WithLabelValues(addr).Set(0)
	}
	transportErrors.Set(float64(res.ErrorCount))
}

// AlarmPulsed counts an alarm pattern started for addr.
func AlarmPulsed(addr uint8) {
	alarmPulses.WithLabelValues(label(addr)).Inc()
}

// AlarmSuppressed counts a failure of addr that was not signalled.
func AlarmSuppressed(addr uint8) {
	alarmSuppressed.WithLabelValues(label(addr)).Inc()
}
