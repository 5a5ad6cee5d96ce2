// Package acpmetrics exposes Prometheus instrumentation for acpd, the
// reference daemon built on top of the acp core (SPEC_FULL.md §4.H).
package acpmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "acp"
	subsystem = "frame"
)

// Label names for frame-level metrics.
const (
	labelType  = "type"
	labelKeyID = "key_id"
)

// Collector holds every Prometheus metric acpd reports. It is constructed
// against an injected *prometheus.Registry, never the global default
// registry, mirroring the teacher's bfdmetrics.NewCollector(reg) shape.
type Collector struct {
	// FramesEncoded counts successful Encode calls, labeled by frame type.
	FramesEncoded *prometheus.CounterVec

	// FramesDecoded counts successful Decode calls, labeled by frame type.
	FramesDecoded *prometheus.CounterVec

	// AuthFailures counts HMAC verification failures, labeled by frame type
	// (acp.ErrAuthFailed, an Authenticity-class error).
	AuthFailures *prometheus.CounterVec

	// ReplayRejections counts replay-window rejections, labeled by frame
	// type (acp.ErrReplay, also Authenticity-class).
	ReplayRejections *prometheus.CounterVec

	// CRCFailures counts CRC-16 mismatches on decode (acp.ErrCRCMismatch,
	// an Integrity-class error). Unlabeled: a CRC failure happens before
	// the frame type is known to be trustworthy.
	CRCFailures prometheus.Counter

	// ReplayWindowGauge mirrors each session's current last_accepted
	// sequence, labeled by key ID, for operator dashboards.
	ReplayWindowGauge *prometheus.GaugeVec
}

// NewCollector builds a Collector and registers every metric against reg.
// reg must not be nil — acpd always constructs its own registry rather
// than relying on prometheus.DefaultRegisterer (SPEC_FULL.md §4.H).
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		FramesEncoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "encoded_total",
			Help:      "Total frames successfully encoded, by frame type.",
		}, []string{labelType}),

		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decoded_total",
			Help:      "Total frames successfully decoded, by frame type.",
		}, []string{labelType}),

		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "auth_failures_total",
			Help:      "Total HMAC verification failures, by frame type.",
		}, []string{labelType}),

		ReplayRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "replay_rejections_total",
			Help:      "Total replay-window rejections, by frame type.",
		}, []string{labelType}),

		CRCFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "crc_failures_total",
			Help:      "Total CRC-16 mismatches detected on decode.",
		}),

		ReplayWindowGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "acp",
			Subsystem: "session",
			Name:      "replay_window_gauge",
			Help:      "Current last_accepted sequence of a session's replay window, by key ID.",
		}, []string{labelKeyID}),
	}

	reg.MustRegister(
		c.FramesEncoded,
		c.FramesDecoded,
		c.AuthFailures,
		c.ReplayRejections,
		c.CRCFailures,
		c.ReplayWindowGauge,
	)

	return c
}

// ObserveEncode records one successful Encode call for frameType.
func (c *Collector) ObserveEncode(frameType string) {
	c.FramesEncoded.WithLabelValues(frameType).Inc()
}

// ObserveDecode records one successful Decode call for frameType.
func (c *Collector) ObserveDecode(frameType string) {
	c.FramesDecoded.WithLabelValues(frameType).Inc()
}

// ObserveAuthFailure records one HMAC verification failure for frameType.
func (c *Collector) ObserveAuthFailure(frameType string) {
	c.AuthFailures.WithLabelValues(frameType).Inc()
}

// ObserveReplayRejection records one replay-window rejection for frameType.
func (c *Collector) ObserveReplayRejection(frameType string) {
	c.ReplayRejections.WithLabelValues(frameType).Inc()
}

// ObserveCRCFailure records one CRC-16 mismatch.
func (c *Collector) ObserveCRCFailure() {
	c.CRCFailures.Inc()
}

// SetReplayWindow updates the replay-window gauge for keyID to
// lastAccepted, the session's current high-water sequence.
func (c *Collector) SetReplayWindow(keyID uint32, lastAccepted uint32) {
	label := strconv.FormatUint(uint64(keyID), 10)
	c.ReplayWindowGauge.WithLabelValues(label).Set(float64(lastAccepted))
}
