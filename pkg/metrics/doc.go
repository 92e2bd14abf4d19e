/*
Package metrics provides Prometheus metrics collection and exposition for a
driftdb cluster node.

The metrics package defines and registers every metric using the Prometheus
client library, giving observability into membership, Raft health,
partition-table movement, plan routing, the remote metadata cache, the
compaction engine, and inter-node RPC. Metrics are exposed via an HTTP
endpoint for scraping by Prometheus servers, alongside simple liveness and
readiness handlers.

# Metrics Catalog

Cluster Metrics:

driftdb_cluster_nodes_total{status}:
  - Type: Gauge
  - Description: Total number of cluster nodes known to this member
  - Labels: status

driftdb_cluster_blind_nodes_total:
  - Type: Gauge
  - Description: Number of nodes awaiting a partition table push

Raft Metrics:

driftdb_raft_is_leader:
  - Type: Gauge
  - Description: Whether this node is the meta-group Raft leader (1=leader, 0=follower)

driftdb_raft_term:
  - Type: Gauge
  - Description: Current Raft term observed by this node

driftdb_raft_peers_total:
  - Type: Gauge
  - Description: Total number of Raft peers in the meta group

driftdb_raft_log_index / driftdb_raft_applied_index:
  - Type: Gauge
  - Description: Current and last-applied Raft log index

driftdb_raft_apply_duration_seconds:
  - Type: Histogram
  - Description: Time taken to apply a committed Raft log entry

Partition Table Metrics:

driftdb_partition_table_version:
  - Type: Gauge
  - Description: Monotonically increasing version of the locally held table

driftdb_partition_slots_moved_total:
  - Type: Counter
  - Description: Total slots reassigned by AddNode/RemoveNode operations

Plan Routing Metrics:

driftdb_plans_dispatched_total{classification, status}:
  - Type: Counter
  - Description: Non-query plans dispatched, by classification and outcome

driftdb_plan_forward_duration_seconds{classification}:
  - Type: Histogram
  - Description: Time taken to forward a plan to its replica group(s)

driftdb_auto_create_schema_retries_total:
  - Type: Counter
  - Description: One-shot auto-create-and-retry cycles triggered by TIMESERIES_NOT_EXIST

Remote Metadata Cache Metrics:

driftdb_meta_cache_hits_total / driftdb_meta_cache_misses_total:
  - Type: Counter
  - Description: RemoteMetaCache lookups satisfied locally vs requiring a remote pull

driftdb_meta_cache_evictions_total:
  - Type: Counter
  - Description: RemoteMetaCache LRU evictions

Compaction Metrics:

driftdb_compaction_tasks_running:
  - Type: Gauge
  - Description: Number of compaction tasks currently admitted

driftdb_compaction_tasks_total{kind, outcome}:
  - Type: Counter
  - Description: Compaction tasks by kind (inner/cross) and outcome

driftdb_compaction_duration_seconds{kind}:
  - Type: Histogram
  - Description: Compaction task duration by kind

driftdb_compaction_recovered_tasks_total:
  - Type: Counter
  - Description: Compaction logs resumed or rolled back on startup

RPC Metrics:

driftdb_rpc_requests_total{method, status}:
  - Type: Counter
  - Description: Inter-node RPCs by method and status

driftdb_rpc_request_duration_seconds{method}:
  - Type: Histogram
  - Description: Inter-node RPC duration

# Usage

	import "github.com/driftdb/cluster/pkg/metrics"

	metrics.NodesTotal.WithLabelValues("active").Set(5)
	metrics.SlotsMoved.Add(3)

	timer := metrics.NewTimer()
	// ... forward a plan ...
	timer.ObserveDurationVec(metrics.PlanForwardDuration, "replicated")

	http.Handle("/metrics", metrics.Handler())
	http.Handle("/healthz", metrics.HealthHandler())
	http.Handle("/readyz", metrics.ReadyHandler())
	http.Handle("/livez", metrics.LivenessHandler())

# Collector

Collector polls a RaftStatsProvider (satisfied by *meta.Member) on a ticker
for the raft.Stats() fields that aren't convenient to update inline at their
call sites: term, peer count, log index, applied index. Everything else is
set directly by the package that owns the transition — pkg/meta sets
RaftLeader and PartitionTableVersion as they change, pkg/rpc's
instrumentedHandler times every inbound call, pkg/compaction's Scheduler
updates CompactionTasksRunning as tasks are admitted and retired.

# Health

HealthChecker tracks named components (raft, rpc) independently of
Prometheus: RegisterComponent/UpdateComponent record whether a component is
up, GetHealth/GetReadiness summarize them for the /healthz and /readyz
handlers, and LivenessHandler reports only that the process is running.
*/
package metrics
