package models

import "time"

// SignalChannel 信号通道类型
type SignalChannel string

const (
	ChannelFlex SignalChannel = "FLEX"
	ChannelEmg  SignalChannel = "EMG"
)

// Sample 单通道传感器采样，创建后不可变
type Sample struct {
	Channel   SignalChannel
	Value     float64
	Timestamp time.Time
}

// Reading 一帧入站消息解码后的结果（两个通道共享接收时间戳）
type Reading struct {
	Flex      float64
	Emg       float64
	Timestamp time.Time
}

// Samples 展开为 FLEX / EMG 两个采样
func (r Reading) Samples() [2]Sample {
	return [2]Sample{
		{Channel: ChannelFlex, Value: r.Flex, Timestamp: r.Timestamp},
		{Channel: ChannelEmg, Value: r.Emg, Timestamp: r.Timestamp},
	}
}

// PersistedRecord 持久化记录（主库与镜像各写一份，两份不保证一致）
type PersistedRecord struct {
	SessionID       string    `json:"session_id"`
	FlexMeasurement float64   `json:"flex_measurement"`
	EmgMeasurement  float64   `json:"emg_measurement"`
	TimeOfReading   time.Time `json:"time_of_reading"`
}

// RecordFromReading 由解码结果构造持久化记录
func RecordFromReading(sessionID string, r Reading) *PersistedRecord {
	return &PersistedRecord{
		SessionID:       sessionID,
		FlexMeasurement: r.Flex,
		EmgMeasurement:  r.Emg,
		TimeOfReading:   r.Timestamp,
	}
}
