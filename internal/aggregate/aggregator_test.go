package aggregate

import (
	"context"
	"testing"
	"time"

	"fisio-telemetry/internal/models"
	"fisio-telemetry/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedSession(t *testing.T, primary *store.MemoryPrimary, patientID, sessionID string, flex []float64, interval time.Duration) {
	t.Helper()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	for i, v := range flex {
		err := primary.SaveRecord(context.Background(), patientID, &models.PersistedRecord{
			SessionID:       sessionID,
			FlexMeasurement: v,
			EmgMeasurement:  v * 10,
			TimeOfReading:   base.Add(time.Duration(i) * interval),
		})
		require.NoError(t, err)
	}
}

func TestSummarize_Metrics(t *testing.T) {
	primary := store.NewMemoryPrimary()
	a := NewAggregator(primary, zap.NewNop())

	// flex 序列 [3,7,1,9,5]，跨 4 秒
	seedSession(t, primary, "patient-1", "s1", []float64{3, 7, 1, 9, 5}, time.Second)

	summary, err := a.Summarize(context.Background(), "patient-1", "s1")
	require.NoError(t, err)

	assert.Equal(t, 9.0, summary.MaxFlex)
	assert.Equal(t, 90.0, summary.MaxEmg)
	assert.Equal(t, []float64{9, 7, 5, 3, 1}, summary.TopFlexValues)
	assert.Equal(t, 4.0, summary.Duration)
	assert.Equal(t, 5, summary.SampleCount)
}

func TestSummarize_TruncatesTopFive(t *testing.T) {
	primary := store.NewMemoryPrimary()
	a := NewAggregator(primary, zap.NewNop())

	seedSession(t, primary, "patient-1", "s1", []float64{1, 2, 3, 4, 5, 6, 7, 8}, time.Second)

	summary, err := a.Summarize(context.Background(), "patient-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, []float64{8, 7, 6, 5, 4}, summary.TopFlexValues)
}

func TestSummarize_SingleSample(t *testing.T) {
	primary := store.NewMemoryPrimary()
	a := NewAggregator(primary, zap.NewNop())

	seedSession(t, primary, "patient-1", "s1", []float64{2.5}, time.Second)

	summary, err := a.Summarize(context.Background(), "patient-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2.5, summary.MaxFlex)
	assert.Equal(t, []float64{2.5}, summary.TopFlexValues)
	assert.Equal(t, 0.0, summary.Duration)
}

func TestSummarize_NoRecords(t *testing.T) {
	primary := store.NewMemoryPrimary()
	a := NewAggregator(primary, zap.NewNop())

	_, err := a.Summarize(context.Background(), "patient-1", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListSessions_OverviewPerSession(t *testing.T) {
	primary := store.NewMemoryPrimary()
	a := NewAggregator(primary, zap.NewNop())

	seedSession(t, primary, "patient-1", "2026-03-13T09-00-00.000000000Z", []float64{1, 4}, time.Second)
	seedSession(t, primary, "patient-1", "2026-03-14T10-00-00.000000000Z", []float64{8, 2}, time.Second)

	overviews, err := a.ListSessions(context.Background(), "patient-1")
	require.NoError(t, err)
	require.Len(t, overviews, 2)

	// 会话 ID 字典序即时间序
	assert.Equal(t, "2026-03-13T09-00-00.000000000Z", overviews[0].SessionID)
	assert.Equal(t, 4.0, overviews[0].MaxFlex)
	assert.Equal(t, 8.0, overviews[1].MaxFlex)
	assert.Equal(t, 80.0, overviews[1].MaxEmg)
}

func TestListSessions_EmptyPatient(t *testing.T) {
	primary := store.NewMemoryPrimary()
	a := NewAggregator(primary, zap.NewNop())

	overviews, err := a.ListSessions(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, overviews)
}

func TestSeries_FlexAndEmg(t *testing.T) {
	primary := store.NewMemoryPrimary()
	a := NewAggregator(primary, zap.NewNop())

	seedSession(t, primary, "patient-1", "s1", []float64{3, 7, 1}, time.Second)

	flex, err := a.Series(context.Background(), "patient-1", "s1", models.ChannelFlex)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 7, 1}, flex)

	emg, err := a.Series(context.Background(), "patient-1", "s1", models.ChannelEmg)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 70, 10}, emg)
}

func TestSeries_NoRecords(t *testing.T) {
	primary := store.NewMemoryPrimary()
	a := NewAggregator(primary, zap.NewNop())

	_, err := a.Series(context.Background(), "patient-1", "missing", models.ChannelFlex)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
