package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	AuthChallengesIssued prometheus.Counter
	AuthVerifications    *prometheus.CounterVec
	RecordsCertified     prometheus.Counter
	CertificatesVerified *prometheus.CounterVec
	OpeningsCombined     prometheus.Counter
	CertifyDurationMs    prometheus.Histogram
	VerifyDurationMs     prometheus.Histogram
	RequestDuration      *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AuthChallengesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medguard_auth_challenges_issued_total",
			Help: "Total number of wallet authentication challenges issued",
		}),
		AuthVerifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medguard_auth_verifications_total",
			Help: "Challenge signature verifications by outcome",
		}, []string{"outcome"}),
		RecordsCertified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medguard_records_certified_total",
			Help: "Total number of records certified with a group signature",
		}),
		CertificatesVerified: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medguard_certificates_verified_total",
			Help: "Certificate verifications during disclosure by outcome",
		}, []string{"outcome"}),
		OpeningsCombined: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medguard_openings_combined_total",
			Help: "Total number of threshold openings that reached the combined state",
		}),
		CertifyDurationMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "medguard_certify_duration_ms",
			Help:    "Latency of record certification in milliseconds",
			Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500},
		}),
		VerifyDurationMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "medguard_disclosure_verify_duration_ms",
			Help:    "Latency of disclosure verification per certificate in milliseconds",
			Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500},
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medguard_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
	}
}
