package partition

import (
	"fmt"

	"github.com/driftdb/cluster/pkg/clustererr"
	"github.com/driftdb/cluster/pkg/types"
)

// SubPlan is one group's share of a split plan. RowIndices records, for a
// batch insert, which original row indices this sub-plan carries, so the
// combined response can reweave per-row results (spec.md §4.2, §4.3.7).
type SubPlan struct {
	Group      types.ReplicaGroup
	Plan       types.Plan
	RowIndices []int
}

// StorageGroupResolver is the metadata collaborator the router consults to
// learn a row's storage group and to expand deletion wildcards. It is an
// external collaborator per spec.md §1 (the metadata tree is out of scope).
type StorageGroupResolver interface {
	// StorageGroupOf returns the storage group owning path, or
	// clustererr.KindStorageGroupNotSet if the prefix is not known locally.
	StorageGroupOf(path string) (string, error)
	// ExpandWildcard resolves a (possibly wildcard) path into concrete
	// measurement paths.
	ExpandWildcard(path string) ([]string, error)
}

// TableProvider returns the table currently in effect. Routing reads the
// table through this indirection rather than a snapshot pointer, since
// membership join/heartbeat/snapshot-restore all swap in a new *Table and a
// Router built before any of those must still see the replacement.
type TableProvider interface {
	Table() *Table
}

// Router splits a parsed plan into sub-plans each targeting exactly one
// replica group. It holds no table state of its own: every split reads the
// live table through tableSource.
type Router struct {
	tableSource       TableProvider
	resolver          StorageGroupResolver
	partitionInterval int64
}

// NewRouter builds a Router that reads its table from tableSource on every
// split, resolving storage groups/wildcards via resolver and computing time
// partitions with partitionInterval.
func NewRouter(tableSource TableProvider, resolver StorageGroupResolver, partitionInterval int64) *Router {
	return &Router{tableSource: tableSource, resolver: resolver, partitionInterval: partitionInterval}
}

// SplitPointInsert derives (storageGroup, timePartition) from the row's
// device+timestamp and returns a single-entry map of group -> sub-plan.
func (r *Router) SplitPointInsert(plan types.Plan) ([]SubPlan, error) {
	if len(plan.Rows) != 1 {
		return nil, fmt.Errorf("point insert plan must carry exactly one row, got %d", len(plan.Rows))
	}
	row := plan.Rows[0]

	sg, err := r.storageGroupFor(row.Device)
	if err != nil {
		return nil, err
	}

	tp := TimePartition(row.Timestamp, r.partitionInterval)
	group, err := r.tableSource.Table().Route(sg, tp)
	if err != nil {
		return nil, err
	}

	sub := plan
	sub.StorageGroup = sg
	return []SubPlan{{Group: group, Plan: sub, RowIndices: []int{0}}}, nil
}

// SplitBatchInsert scans the tablet's rows, groups them by
// (storageGroup, timePartition) since a tablet may contain interleaved time
// ranges, and emits one sub-plan per group carrying the original row indices
// so per-row results can be rewoven later (spec.md §4.2, §4.3.7).
func (r *Router) SplitBatchInsert(plan types.Plan) ([]SubPlan, error) {
	type key struct {
		group string // group header identifier as a map key
		sg    string
		tp    int64
	}

	groups := make(map[key]*SubPlan)
	var order []key

	for i, row := range plan.Rows {
		sg, err := r.storageGroupFor(row.Device)
		if err != nil {
			return nil, err
		}
		tp := TimePartition(row.Timestamp, r.partitionInterval)
		rg, err := r.tableSource.Table().Route(sg, tp)
		if err != nil {
			return nil, err
		}

		k := key{group: fmt.Sprintf("%d", rg.Header().Identifier), sg: sg, tp: tp}
		sub, ok := groups[k]
		if !ok {
			sub = &SubPlan{
				Group: rg,
				Plan:  types.Plan{Kind: plan.Kind, Op: plan.Op, StorageGroup: sg},
			}
			groups[k] = sub
			order = append(order, k)
		}
		sub.Plan.Rows = append(sub.Plan.Rows, row)
		sub.RowIndices = append(sub.RowIndices, i)
	}

	out := make([]SubPlan, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out, nil
}

// SplitCreateTimeSeries routes schema creation to the group owning the
// storage group's slot (time partition is irrelevant to schema).
func (r *Router) SplitCreateTimeSeries(plan types.Plan) ([]SubPlan, error) {
	sg, err := r.storageGroupFor(plan.Paths[0])
	if err != nil {
		return nil, err
	}
	group, err := r.tableSource.Table().Route(sg, 0)
	if err != nil {
		return nil, err
	}
	sub := plan
	sub.StorageGroup = sg
	return []SubPlan{{Group: group, Plan: sub}}, nil
}

// SplitDeleteTimeSeries expands wildcards to concrete paths, freezing them
// before broadcasting to every group (spec.md §4.2, §4.3.6 step 3).
func (r *Router) SplitDeleteTimeSeries(plan types.Plan) ([]SubPlan, error) {
	var concrete []string
	for _, p := range plan.Paths {
		expanded, err := r.resolver.ExpandWildcard(p)
		if err != nil {
			return nil, err
		}
		concrete = append(concrete, expanded...)
	}

	sub := plan
	sub.Paths = concrete

	var out []SubPlan
	for _, group := range r.tableSource.Table().AllGroups() {
		out = append(out, SubPlan{Group: group, Plan: sub})
	}
	return out, nil
}

// Split is idempotent once a plan is single-group: passing a SubPlan.Plan
// that already carries a single concrete StorageGroup and targets one group
// back through Split returns the same single sub-plan unchanged (spec.md §8,
// "Plan-router idempotence").
func (r *Router) Split(plan types.Plan) ([]SubPlan, error) {
	switch plan.Op {
	case types.OpPointInsert:
		return r.SplitPointInsert(plan)
	case types.OpBatchInsert:
		return r.SplitBatchInsert(plan)
	case types.OpCreateTimeSeries:
		return r.SplitCreateTimeSeries(plan)
	case types.OpDeleteTimeSeries:
		return r.SplitDeleteTimeSeries(plan)
	default:
		return nil, fmt.Errorf("partition router cannot split plan kind %s", plan.Op)
	}
}

func (r *Router) storageGroupFor(path string) (string, error) {
	sg, err := r.resolver.StorageGroupOf(path)
	if err != nil {
		return "", clustererr.New(clustererr.KindStorageGroupNotSet, err)
	}
	return sg, nil
}
