package metrics

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		inferenceTokensIn,
		inferenceTokensOut,
		inferenceCostUSD,
		inferenceLatencyMs,
	)
}

var (
	inferenceTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_tokens_in",
			Help: "Sum of prompt (input) tokens per provider.",
		},
		[]string{"provider"},
	)

	inferenceTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_tokens_out",
			Help: "Sum of completion (output) tokens per provider.",
		},
		[]string{"provider"},
	)

	inferenceCostUSD = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_cost_usd",
			Help: "Estimated cumulative inference cost per provider.",
		},
		[]string{"provider"},
	)

	inferenceLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_latency_ms",
			Help:    "Inference call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000, 30000},
		},
		[]string{"provider", "success"},
	)
)

func ObserveInference(provider string, tokensIn, tokensOut int, costUSD float64, latencyMs int, success bool) {
	p := norm(provider)
	inferenceTokensIn.WithLabelValues(p).Add(float64(tokensIn))
	inferenceTokensOut.WithLabelValues(p).Add(float64(tokensOut))
	inferenceCostUSD.WithLabelValues(p).Add(costUSD)
	inferenceLatencyMs.WithLabelValues(p, strconv.FormatBool(success)).Observe(float64(latencyMs))
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
