package meta

import (
	"strings"

	"github.com/driftdb/cluster/pkg/partition"
	"github.com/driftdb/cluster/pkg/types"
)

// reassemble reweaves the per-group results of a partitioned batch back
// into one combined status of length equal to the original row count
// (spec.md §4.3.7). Rows that never failed keep a SUCCESS default.
func reassemble(original types.Plan, subplans []partition.SubPlan, results []types.TSStatus) types.TSStatus {
	if len(original.Rows) == 0 {
		return combineAll(results)
	}

	combined := make([]types.TSStatus, len(original.Rows))
	for i := range combined {
		combined[i] = types.Success()
	}

	allSuccess := true
	anyBatchFailure := false
	var aggregated []string

	for i, sp := range subplans {
		res := results[i]
		if res.IsSuccess() {
			continue
		}
		allSuccess = false
		if len(res.SubStatus) == len(sp.RowIndices) {
			anyBatchFailure = true
			for j, rowIdx := range sp.RowIndices {
				combined[rowIdx] = res.SubStatus[j]
			}
			continue
		}
		if res.Message != "" {
			aggregated = append(aggregated, res.Message)
		}
	}

	if allSuccess {
		return types.Success()
	}
	if anyBatchFailure {
		return types.TSStatus{Code: types.StatusMultipleError, SubStatus: combined}
	}
	return types.TSStatus{Code: types.StatusExecuteStatementError, Message: strings.Join(aggregated, "; ")}
}

// failingMeasurements extracts the device paths of rows that failed with
// TIMESERIES_NOT_EXIST, for the one-shot auto-create-and-retry
// (spec.md §4.3.7).
func failingMeasurements(original types.Plan, combined types.TSStatus) []string {
	seen := map[string]bool{}
	var out []string
	for i, sub := range combined.SubStatus {
		if sub.Code != types.StatusTimeseriesNotExist {
			continue
		}
		if i >= len(original.Rows) {
			continue
		}
		device := original.Rows[i].Device
		if !seen[device] {
			seen[device] = true
			out = append(out, device)
		}
	}
	if len(out) == 0 && combined.Code == types.StatusTimeseriesNotExist {
		return original.Paths
	}
	return out
}
