package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster membership metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "driftdb_cluster_nodes_total",
			Help: "Total number of cluster nodes known to this member",
		},
		[]string{"status"},
	)

	BlindNodesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftdb_cluster_blind_nodes_total",
			Help: "Number of nodes awaiting a partition table push",
		},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftdb_raft_is_leader",
			Help: "Whether this node is the meta-group Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftTerm = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftdb_raft_term",
			Help: "Current Raft term observed by this node",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftdb_raft_peers_total",
			Help: "Total number of Raft peers in the meta group",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftdb_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftdb_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "driftdb_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Partition table metrics
	PartitionTableVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftdb_partition_table_version",
			Help: "Monotonically increasing version of the locally held partition table",
		},
	)

	SlotsMoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "driftdb_partition_slots_moved_total",
			Help: "Total number of slots reassigned by AddNode/RemoveNode operations",
		},
	)

	// Plan routing / forwarding metrics
	PlansDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftdb_plans_dispatched_total",
			Help: "Total number of non-query plans dispatched, by classification and status",
		},
		[]string{"classification", "status"},
	)

	PlanForwardDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftdb_plan_forward_duration_seconds",
			Help:    "Time taken to forward a plan to its replica group(s)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"classification"},
	)

	AutoCreateSchemaRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "driftdb_auto_create_schema_retries_total",
			Help: "Total number of one-shot auto-create-and-retry cycles triggered by TIMESERIES_NOT_EXIST",
		},
	)

	// Remote metadata cache metrics
	MetaCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "driftdb_meta_cache_hits_total",
			Help: "Total number of RemoteMetaCache lookups satisfied locally",
		},
	)

	MetaCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "driftdb_meta_cache_misses_total",
			Help: "Total number of RemoteMetaCache lookups that required a remote pull",
		},
	)

	MetaCacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "driftdb_meta_cache_evictions_total",
			Help: "Total number of RemoteMetaCache LRU evictions",
		},
	)

	// Compaction metrics
	CompactionTasksRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftdb_compaction_tasks_running",
			Help: "Number of compaction tasks currently admitted",
		},
	)

	CompactionTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftdb_compaction_tasks_total",
			Help: "Total number of compaction tasks by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	CompactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftdb_compaction_duration_seconds",
			Help:    "Compaction task duration in seconds by kind",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"kind"},
	)

	CompactionRecoveredTasks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "driftdb_compaction_recovered_tasks_total",
			Help: "Total number of compaction logs resumed or rolled back by CompactionRecoverTask",
		},
	)

	// RPC metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftdb_rpc_requests_total",
			Help: "Total number of inter-node RPCs by method and status",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftdb_rpc_request_duration_seconds",
			Help:    "Inter-node RPC duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		NodesTotal,
		BlindNodesTotal,
		RaftLeader,
		RaftTerm,
		RaftPeers,
		RaftLogIndex,
		RaftAppliedIndex,
		RaftApplyDuration,
		PartitionTableVersion,
		SlotsMoved,
		PlansDispatchedTotal,
		PlanForwardDuration,
		AutoCreateSchemaRetries,
		MetaCacheHits,
		MetaCacheMisses,
		MetaCacheEvictions,
		CompactionTasksRunning,
		CompactionTasksTotal,
		CompactionDuration,
		CompactionRecoveredTasks,
		RPCRequestsTotal,
		RPCRequestDuration,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
