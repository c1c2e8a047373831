package display

// ScaleConfig 线性映射参数。display = baseline - baseline*(value-offset)/span
type ScaleConfig struct {
	Baseline float64
	Offset   float64
	Span     float64
}

// MapToDisplay 将原始采样值映射为显示坐标。确定性、无状态。
func MapToDisplay(value float64, cfg ScaleConfig) float64 {
	return cfg.Baseline - cfg.Baseline*(value-cfg.Offset)/cfg.Span
}

// Smoother 对连续映射坐标做指数平滑，消除视觉抖动。
// 平滑状态归消费方所有：每个连接一个实例，不跨协程共享。
type Smoother struct {
	position float64
	alpha    float64
}

// NewSmoother alpha 为平滑系数（渲染层约定 0.1），initial 为起始坐标
func NewSmoother(alpha, initial float64) *Smoother {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.1
	}
	return &Smoother{position: initial, alpha: alpha}
}

// Next position += (target - position) * alpha
func (s *Smoother) Next(target float64) float64 {
	s.position += (target - s.position) * s.alpha
	return s.position
}

// Position 当前平滑后坐标
func (s *Smoother) Position() float64 {
	return s.position
}
