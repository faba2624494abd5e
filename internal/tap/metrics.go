package tap

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	framesRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiretap_frames_relayed_total",
			Help: "Total number of frames relayed, by direction",
		},
		[]string{"direction"},
	)

	bytesRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiretap_bytes_relayed_total",
			Help: "Total wire bytes relayed including the 4-byte headers, by direction",
		},
		[]string{"direction"},
	)

	decodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiretap_decode_failures_total",
			Help: "Total relayed frames whose payload did not decode, by direction",
		},
		[]string{"direction"},
	)
)

// Register registers the proxy metrics with r.
func Register(r prometheus.Registerer) {
	r.MustRegister(framesRelayed, bytesRelayed, decodeFailures)
}

// FrameRelayed counts one relayed frame of wireBytes total bytes.
func FrameRelayed(direction string, wireBytes int) {
	framesRelayed.WithLabelValues(direction).Inc()
	bytesRelayed.WithLabelValues(direction).Add(float64(wireBytes))
}

// DecodeFailed counts a relayed frame that did not decode.
func DecodeFailed(direction string) {
	decodeFailures.WithLabelValues(direction).Inc()
}
