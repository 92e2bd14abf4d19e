package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftdb/cluster/pkg/partition"
	"github.com/driftdb/cluster/pkg/types"
)

func batchPlan(n int) types.Plan {
	rows := make([]types.Row, n)
	for i := range rows {
		rows[i] = types.Row{Device: "root.sg.d1", Timestamp: int64(i)}
	}
	return types.Plan{Kind: types.PlanPartitioned, Op: types.OpBatchInsert, Rows: rows}
}

func TestReassembleAllSuccess(t *testing.T) {
	plan := batchPlan(4)
	subplans := []partition.SubPlan{
		{RowIndices: []int{0, 1}},
		{RowIndices: []int{2, 3}},
	}
	results := []types.TSStatus{types.Success(), types.Success()}

	combined := reassemble(plan, subplans, results)
	assert.True(t, combined.IsSuccess())
}

func TestReassembleMapsPerRowFailuresBackByIndex(t *testing.T) {
	plan := batchPlan(4)
	subplans := []partition.SubPlan{
		{RowIndices: []int{0, 1}},
		{RowIndices: []int{2, 3}},
	}
	results := []types.TSStatus{
		types.Success(),
		{
			Code: types.StatusMultipleError,
			SubStatus: []types.TSStatus{
				types.Success(),
				{Code: types.StatusTimeseriesNotExist, Message: "root.sg.d1 missing"},
			},
		},
	}

	combined := reassemble(plan, subplans, results)
	assert.Equal(t, types.StatusMultipleError, combined.Code)
	assert.Len(t, combined.SubStatus, 4)
	assert.True(t, combined.SubStatus[0].IsSuccess())
	assert.True(t, combined.SubStatus[1].IsSuccess())
	assert.True(t, combined.SubStatus[2].IsSuccess())
	assert.Equal(t, types.StatusTimeseriesNotExist, combined.SubStatus[3].Code)
}

func TestReassembleAggregatesNonBatchFailureMessages(t *testing.T) {
	plan := batchPlan(2)
	subplans := []partition.SubPlan{
		{RowIndices: []int{0}},
		{RowIndices: []int{1}},
	}
	results := []types.TSStatus{
		types.Success(),
		{Code: types.StatusTimeOut, Message: "group timed out"},
	}

	combined := reassemble(plan, subplans, results)
	assert.Equal(t, types.StatusExecuteStatementError, combined.Code)
	assert.Contains(t, combined.Message, "group timed out")
}

func TestFailingMeasurementsExtractsUniqueDevices(t *testing.T) {
	plan := batchPlan(3)
	combined := types.TSStatus{
		Code: types.StatusMultipleError,
		SubStatus: []types.TSStatus{
			{Code: types.StatusTimeseriesNotExist},
			types.Success(),
			{Code: types.StatusTimeseriesNotExist},
		},
	}

	failing := failingMeasurements(plan, combined)
	assert.Equal(t, []string{"root.sg.d1"}, failing)
}
