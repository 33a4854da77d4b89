package sim

import (
	"go.uber.org/zap"
)

// EventLogger is a hook that writes port traffic, clock ticks, and step
// summaries into a zap logger at debug level.
type EventLogger struct {
	logger *zap.Logger
}

// NewEventLogger returns a new EventLogger which will write into the logger.
func NewEventLogger(logger *zap.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

// Func writes the information carried by the hook context.
func (h *EventLogger) Func(ctx HookCtx) {
	switch item := ctx.Item.(type) {
	case PortEvent:
		h.logger.Debug(ctx.Pos.Name,
			zap.String("port", item.Port),
			zap.Stringer("event", item.ID),
			zap.Stringer("origin", item.Origin),
			zap.Any("value", item.Value),
		)
	case Tick:
		h.logger.Debug(ctx.Pos.Name,
			zap.Uint64("cycle", item.Cycle),
			zap.Any("clocks", ctx.Detail),
		)
	case StepResult:
		h.logger.Debug(ctx.Pos.Name,
			zap.Uint64("cycle", item.Cycle),
			zap.Int("ticks", item.Ticks),
			zap.Int("passes", item.Passes),
			zap.Int("observations", item.Observations),
			zap.Bool("terminated", item.Terminated),
		)
	}
}
