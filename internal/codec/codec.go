package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"fisio-telemetry/internal/models"
)

// CodecError 入站消息格式错误。采样被丢弃，流继续
type CodecError struct {
	Reason string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("malformed payload: %s", e.Reason)
}

// rawFrame 一帧入站消息：{"flex": number, "emg": number}
// 用指针区分"字段缺失"和"值为 0"
type rawFrame struct {
	Flex *float64 `json:"flex"`
	Emg  *float64 `json:"emg"`
}

// Decode 解析一帧入站消息为 Reading。纯函数，无副作用。
// 入站消息不带序号，时间戳由调用方以接收时间传入。
func Decode(payload []byte, at time.Time) (*models.Reading, error) {
	var frame rawFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, &CodecError{Reason: err.Error()}
	}
	if frame.Flex == nil {
		return nil, &CodecError{Reason: "missing flex value"}
	}
	if frame.Emg == nil {
		return nil, &CodecError{Reason: "missing emg value"}
	}
	return &models.Reading{
		Flex:      *frame.Flex,
		Emg:       *frame.Emg,
		Timestamp: at,
	}, nil
}
