package models

import "time"

// SessionState 会话状态机：IDLE → ACTIVE → ENDED（终态）
type SessionState string

const (
	SessionIdle   SessionState = "IDLE"
	SessionActive SessionState = "ACTIVE"
	SessionEnded  SessionState = "ENDED"
)

// Session 一次治疗会话。每个患者同一时刻最多一个 ACTIVE 会话，
// 会话记录本身比内存缓冲存活更久（缓冲在结束时丢弃，持久化采样保留）。
type Session struct {
	SessionID string       `json:"session_id"`
	PatientID string       `json:"patient_id"`
	State     SessionState `json:"state"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
}

// Comment 治疗师事后附加的会话备注，按时间戳作为追加/删除键
type Comment struct {
	SessionID string    `json:"session_id,omitempty"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionSummary 会话汇总指标，按查询即时计算，不落库
type SessionSummary struct {
	SessionID     string    `json:"session_id"`
	MaxFlex       float64   `json:"max_flex"`
	MaxEmg        float64   `json:"max_emg"`
	TopFlexValues []float64 `json:"top_flex_values"`
	Duration      float64   `json:"duration"`
	SampleCount   int       `json:"sample_count"`
}

// SessionOverview 历史会话列表项（Historico 页面使用 max_flex/max_emg 画柱状图）
type SessionOverview struct {
	SessionID string  `json:"session_id"`
	MaxFlex   float64 `json:"max_flex"`
	MaxEmg    float64 `json:"max_emg"`
}
