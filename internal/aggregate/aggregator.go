package aggregate

import (
	"context"
	"fmt"
	"sort"

	"fisio-telemetry/internal/models"
	"fisio-telemetry/internal/store"

	"go.uber.org/zap"
)

// TopFlexCount 汇总指标中 top-N 的 N
const TopFlexCount = 5

// Aggregator 会话聚合器：按需从主库读取已持久化采样计算汇总指标。
// 查询路径永远不读镜像。结果即算即返，不落库。
type Aggregator struct {
	primary store.PrimaryStore
	logger  *zap.Logger
}

// NewAggregator 创建聚合器
func NewAggregator(primary store.PrimaryStore, logger *zap.Logger) *Aggregator {
	return &Aggregator{primary: primary, logger: logger}
}

// Summarize 计算会话汇总指标。
// 零记录返回 store.ErrNotFound；单采样会话合法（duration=0，top 列表长度 1）。
// 对进行中的会话返回查询时刻主库已有的数据。
func (a *Aggregator) Summarize(ctx context.Context, patientID, sessionID string) (*models.SessionSummary, error) {
	records, err := a.primary.ListRecords(ctx, patientID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session records: %w", err)
	}
	if len(records) == 0 {
		return nil, store.ErrNotFound
	}

	summary := &models.SessionSummary{
		SessionID:   sessionID,
		MaxFlex:     records[0].FlexMeasurement,
		MaxEmg:      records[0].EmgMeasurement,
		SampleCount: len(records),
	}

	flexValues := make([]float64, 0, len(records))
	first, last := records[0].TimeOfReading, records[0].TimeOfReading
	for _, rec := range records {
		flexValues = append(flexValues, rec.FlexMeasurement)
		if rec.FlexMeasurement > summary.MaxFlex {
			summary.MaxFlex = rec.FlexMeasurement
		}
		if rec.EmgMeasurement > summary.MaxEmg {
			summary.MaxEmg = rec.EmgMeasurement
		}
		if rec.TimeOfReading.Before(first) {
			first = rec.TimeOfReading
		}
		if rec.TimeOfReading.After(last) {
			last = rec.TimeOfReading
		}
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(flexValues)))
	if len(flexValues) > TopFlexCount {
		flexValues = flexValues[:TopFlexCount]
	}
	summary.TopFlexValues = flexValues
	summary.Duration = last.Sub(first).Seconds()

	return summary, nil
}

// ListSessions 患者历史会话列表，每项带该会话的 max_flex/max_emg
func (a *Aggregator) ListSessions(ctx context.Context, patientID string) ([]models.SessionOverview, error) {
	ids, err := a.primary.ListSessionIDs(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	overviews := make([]models.SessionOverview, 0, len(ids))
	for _, id := range ids {
		summary, err := a.Summarize(ctx, patientID, id)
		if err != nil {
			// 列表里出现无记录的会话只可能是查询窗口间的竞争，跳过即可
			a.logger.Warn("failed to summarize session, skipping",
				zap.String("patient_id", patientID),
				zap.String("session_id", id),
				zap.Error(err),
			)
			continue
		}
		overviews = append(overviews, models.SessionOverview{
			SessionID: id,
			MaxFlex:   summary.MaxFlex,
			MaxEmg:    summary.MaxEmg,
		})
	}
	return overviews, nil
}

// Series 返回会话单通道的原始值序列（报表画图用），按读数时间序
func (a *Aggregator) Series(ctx context.Context, patientID, sessionID string, ch models.SignalChannel) ([]float64, error) {
	records, err := a.primary.ListRecords(ctx, patientID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session records: %w", err)
	}
	if len(records) == 0 {
		return nil, store.ErrNotFound
	}

	values := make([]float64, 0, len(records))
	for _, rec := range records {
		switch ch {
		case models.ChannelEmg:
			values = append(values, rec.EmgMeasurement)
		default:
			values = append(values, rec.FlexMeasurement)
		}
	}
	return values, nil
}

// Comments 会话备注（主库边表）
func (a *Aggregator) Comments(ctx context.Context, patientID, sessionID string) ([]models.Comment, error) {
	return a.primary.ListComments(ctx, patientID, sessionID)
}
