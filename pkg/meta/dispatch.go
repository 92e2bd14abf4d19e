package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/driftdb/cluster/internal/config"
	"github.com/driftdb/cluster/pkg/metrics"
	"github.com/driftdb/cluster/pkg/partition"
	"github.com/driftdb/cluster/pkg/types"
)

// LocalExecutor runs a plan with no cluster-wide effect against the local
// storage engine.
type LocalExecutor interface {
	ExecuteLocal(plan types.Plan) types.TSStatus
}

// MetadataExpander expands wildcard paths into concrete measurement paths
// and can create schema inline for auto-create-schema retries.
type MetadataExpander interface {
	ExpandWildcard(paths []string) ([]string, error)
	CreateTimeSeries(paths []string) error
}

// GroupForwarder delivers a (sub-)plan to one remote node and returns its
// executed status.
type GroupForwarder interface {
	Forward(ctx context.Context, node types.Node, plan types.Plan) (types.TSStatus, error)
}

// LatencyRanker orders a replica group's nodes fastest-first, matching the
// RemoteMetaCache collaborator of the same name (spec.md §4.3.6,
// "latency-ordered coordinator collaborator").
type LatencyRanker interface {
	OrderByLatency(group types.ReplicaGroup) []types.Node
}

// Dispatcher implements ExecuteNonQueryPlan (spec.md §4.3.6-4.3.7).
type Dispatcher struct {
	member    *Member
	router    *partition.Router
	local     LocalExecutor
	expander  MetadataExpander
	forwarder GroupForwarder
	ranker    LatencyRanker
	cfg       *config.Config
}

// NewDispatcher builds a Dispatcher for member.
func NewDispatcher(member *Member, router *partition.Router, local LocalExecutor, expander MetadataExpander, forwarder GroupForwarder, ranker LatencyRanker, cfg *config.Config) *Dispatcher {
	return &Dispatcher{member: member, router: router, local: local, expander: expander, forwarder: forwarder, ranker: ranker, cfg: cfg}
}

// ExecuteNonQueryPlan dispatches plan according to its classification
// (spec.md §4.3.6).
func (d *Dispatcher) ExecuteNonQueryPlan(ctx context.Context, plan types.Plan) types.TSStatus {
	timer := metrics.NewTimer()
	var status types.TSStatus

	switch plan.Kind {
	case types.PlanLocal:
		status = d.local.ExecuteLocal(plan)
	case types.PlanGlobalMeta:
		status = d.executeGlobalMeta(ctx, plan)
	case types.PlanGlobalData:
		status = d.executeGlobalData(ctx, plan)
	case types.PlanPartitioned:
		status = d.executePartitioned(ctx, plan, true)
	default:
		status = types.TSStatus{Code: types.StatusInternalServerError, Message: fmt.Sprintf("unknown plan kind %s", plan.Kind)}
	}

	outcome := "success"
	if !status.IsSuccess() {
		outcome = "failure"
	}
	metrics.PlansDispatchedTotal.WithLabelValues(plan.Kind.String(), outcome).Inc()
	timer.ObserveDurationVec(metrics.PlanForwardDuration, plan.Kind.String())
	return status
}

// ExecuteLocal runs plan against this node's local storage engine without
// any routing, for RPC handlers serving an already-targeted (sub-)plan
// (spec.md §4.3.6, ForwardPlan).
func (d *Dispatcher) ExecuteLocal(plan types.Plan) types.TSStatus {
	return d.local.ExecuteLocal(plan)
}

func (d *Dispatcher) executeGlobalMeta(ctx context.Context, plan types.Plan) types.TSStatus {
	if d.member.IsLeader() {
		if err := d.applyGlobalMeta(plan); err != nil {
			return types.TSStatus{Code: types.StatusInternalServerError, Message: err.Error()}
		}
		return types.Success()
	}

	leader := d.member.Leader()
	status, err := d.forwarder.Forward(ctx, leader, plan)
	if err != nil {
		return types.TSStatus{Code: types.StatusLeadershipStale, Message: err.Error()}
	}
	return status
}

// applyGlobalMeta replicates a global-meta plan (e.g. SetStorageGroup)
// through the meta-group Raft log.
func (d *Dispatcher) applyGlobalMeta(plan types.Plan) error {
	var data json.RawMessage
	switch plan.Op {
	case types.OpSetStorageGroup:
		raw, err := json.Marshal(plan.StorageGroup)
		if err != nil {
			return err
		}
		data = raw
	default:
		raw, err := json.Marshal(plan)
		if err != nil {
			return err
		}
		data = raw
	}

	cmd := Command{Op: opSetStorageGroup, Data: data}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	future := d.member.raft.Apply(payload, d.cfg.WriteOperationTimeout())
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to replicate global-meta plan: %w", err)
	}
	if err, ok := future.Response().(error); ok && err != nil {
		return err
	}
	return nil
}

func (d *Dispatcher) executeGlobalData(ctx context.Context, plan types.Plan) types.TSStatus {
	paths, err := d.expander.ExpandWildcard(plan.Paths)
	if err != nil {
		return types.TSStatus{Code: types.StatusExecuteStatementError, Message: err.Error()}
	}
	frozen := plan
	frozen.Paths = paths

	groups := d.member.Table().AllGroups()
	results := make([]types.TSStatus, len(groups))
	var wg sync.WaitGroup
	for i, g := range groups {
		wg.Add(1)
		go func(i int, g types.ReplicaGroup) {
			defer wg.Done()
			results[i] = d.forwardToGroup(ctx, g, frozen)
		}(i, g)
	}
	wg.Wait()

	return combineAll(results)
}

func (d *Dispatcher) executePartitioned(ctx context.Context, plan types.Plan, allowAutoCreate bool) types.TSStatus {
	subplans, err := d.router.Split(plan)
	if err != nil {
		return types.TSStatus{Code: types.StatusExecuteStatementError, Message: err.Error()}
	}

	if len(subplans) == 0 && d.cfg.EnableAutoCreateSchema && allowAutoCreate {
		if err := d.expander.CreateTimeSeries(plan.Paths); err != nil {
			return types.TSStatus{Code: types.StatusExecuteStatementError, Message: err.Error()}
		}
		metrics.AutoCreateSchemaRetries.Inc()
		subplans, err = d.router.Split(plan)
		if err != nil {
			return types.TSStatus{Code: types.StatusExecuteStatementError, Message: err.Error()}
		}
	}

	results := make([]types.TSStatus, len(subplans))
	var wg sync.WaitGroup
	for i, sp := range subplans {
		wg.Add(1)
		go func(i int, sp partition.SubPlan) {
			defer wg.Done()
			results[i] = d.forwardToGroup(ctx, sp.Group, sp.Plan)
		}(i, sp)
	}
	wg.Wait()

	combined := reassemble(plan, subplans, results)

	if (combined.Code == types.StatusTimeseriesNotExist || combined.Code == types.StatusMultipleError) && d.cfg.EnableAutoCreateSchema && allowAutoCreate {
		failing := failingMeasurements(plan, combined)
		if len(failing) > 0 {
			if err := d.expander.CreateTimeSeries(failing); err != nil {
				return types.TSStatus{Code: types.StatusExecuteStatementError, Message: err.Error()}
			}
			metrics.AutoCreateSchemaRetries.Inc()
			return d.executePartitioned(ctx, plan, false)
		}
	}

	return combined
}

// forwardToGroup handles plan locally if this node is a member of group,
// otherwise retries latency-ordered members in order until one succeeds
// (spec.md §4.3.6, forwarding policy).
func (d *Dispatcher) forwardToGroup(ctx context.Context, group types.ReplicaGroup, plan types.Plan) types.TSStatus {
	if group.Contains(d.member.Self().Identifier) {
		return d.local.ExecuteLocal(plan)
	}

	var lastErr error
	for _, node := range d.ranker.OrderByLatency(group) {
		status, err := d.forwarder.Forward(ctx, node, plan)
		if err != nil {
			lastErr = err
			continue
		}
		return status
	}
	return types.TSStatus{Code: types.StatusTimeOut, Message: fmt.Sprintf("forward to group %d exhausted: %v", group.Header().Identifier, lastErr)}
}

// combineAll aggregates a set of per-group statuses from a non-batch
// broadcast (global-data / global-meta dispatch): success only if every
// group succeeded, else a joined error message.
func combineAll(results []types.TSStatus) types.TSStatus {
	var errs []string
	for _, r := range results {
		if !r.IsSuccess() {
			if r.Message != "" {
				errs = append(errs, r.Message)
			} else {
				errs = append(errs, fmt.Sprintf("status code %d", r.Code))
			}
		}
	}
	if len(errs) == 0 {
		return types.Success()
	}
	return types.TSStatus{Code: types.StatusExecuteStatementError, Message: strings.Join(errs, "; ")}
}
