package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the auction engine.
type Metrics struct {
	// --- Invocation processing ---
	InvocationsApplied  *prometheus.CounterVec
	InvocationsRejected *prometheus.CounterVec
	InvocationDuration  *prometheus.HistogramVec
	ProcessorSequence   prometheus.Gauge
	AuctionStatus       prometheus.Gauge

	// --- Transfer protocol ---
	TransferRequests *prometheus.CounterVec
	CallbackVerdicts *prometheus.CounterVec
	ClaimCredits     *prometheus.CounterVec
	ClaimSettlements prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge

	// --- Gateway ---
	MessagesReceived *prometheus.CounterVec
	ParseFailures    *prometheus.CounterVec
	PublishErrors    prometheus.Counter

	// --- Persistence ---
	PersistRowsWritten  prometheus.Counter
	PersistBatchDur     prometheus.Histogram
	PersistErrors       *prometheus.CounterVec
	PersistRetry        prometheus.Counter
	PersistLastSequence prometheus.Gauge
	StateSaves          prometheus.Counter

	// --- Projection ---
	ProjectionUpdates prometheus.Counter
	ProjectionErrors  prometheus.Counter
	ProjectionDrops   prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	queryBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
		0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	}

	return &Metrics{
		InvocationsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_invocations_applied_total",
			Help: "Invocations applied to the auction state",
		}, []string{"selector"}),

		InvocationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_invocations_rejected_total",
			Help: "Invocations rejected (duplicate, precondition, denied transfer)",
		}, []string{"selector", "reason"}),

		InvocationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auction_invocation_duration_seconds",
			Help:    "Time to process one invocation",
			Buckets: latencyBuckets,
		}, []string{"selector"}),

		ProcessorSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "auction_processor_sequence",
			Help: "Next local sequence number of the processor",
		}),

		AuctionStatus: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "auction_status",
			Help: "Auction lifecycle phase (0=creation 1=bidding 2=ended 3=cancelled)",
		}),

		TransferRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_transfer_requests_total",
			Help: "Transfer requests handed to the host",
		}, []string{"selector"}),

		CallbackVerdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_callback_verdicts_total",
			Help: "Callback verdicts delivered by the host",
		}, []string{"selector", "verdict"}),

		ClaimCredits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_claim_credits_total",
			Help: "Ledger credits by token side",
		}, []string{"token"}),

		ClaimSettlements: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auction_claim_settlements_total",
			Help: "Claim entries settled and zeroed",
		}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_idempotency_duplicates_total",
			Help: "Duplicate invocations caught",
		}, []string{"selector", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "auction_dedup_lru_size",
			Help: "Entries in the in-memory dedup LRU",
		}),

		MessagesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_gateway_messages_received_total",
			Help: "Messages pulled from the host streams",
		}, []string{"subject"}),

		ParseFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_gateway_parse_failures_total",
			Help: "Messages that failed to parse",
		}, []string{"subject"}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auction_gateway_publish_errors_total",
			Help: "Failed transfer-request publishes",
		}),

		PersistRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auction_persist_rows_written_total",
			Help: "Invocation log rows written",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "auction_persist_batch_duration_seconds",
			Help:    "Time to flush one persistence batch",
			Buckets: queryBuckets,
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_persist_errors_total",
			Help: "Persistence failures",
		}, []string{"kind"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auction_persist_retries_total",
			Help: "Persistence batch retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "auction_persist_last_sequence",
			Help: "Highest sequence durably written",
		}),

		StateSaves: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auction_state_saves_total",
			Help: "Aggregate snapshots written",
		}),

		ProjectionUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auction_projection_updates_total",
			Help: "Claim projection rows updated",
		}),

		ProjectionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auction_projection_errors_total",
			Help: "Claim projection failures",
		}),

		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auction_projection_drops_total",
			Help: "Outputs dropped by the non-blocking projection send",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_query_requests_total",
			Help: "Query API requests",
		}, []string{"endpoint"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auction_query_duration_seconds",
			Help:    "Query API latency",
			Buckets: queryBuckets,
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_query_errors_total",
			Help: "Query API errors",
		}, []string{"endpoint"}),
	}
}
