package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// fixedLevelCore overrides the level of the core it wraps.
type fixedLevelCore struct {
	zapcore.Core

	level zapcore.Level
}

// Enabled reports whether entries at l pass the fixed level.
func (c *fixedLevelCore) Enabled(l zapcore.Level) bool {
	return c.level.Enabled(l)
}

// Check registers the core on the entry when its level passes.
//
//nolint:gocritic // zapcore.Core requires the entry by value.
func (c *fixedLevelCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(ent.Level) {
		return ce
	}

	return ce.AddCore(ent, c)
}

// With keeps the fixed level on derived cores.
//
//nolint:ireturn // zapcore.Core is the contract.
func (c *fixedLevelCore) With(fields []zapcore.Field) zapcore.Core {
	return &fixedLevelCore{Core: c.Core.With(fields), level: c.level}
}

// WithLevel pins a logger to lvl regardless of the shared level.
//
//nolint:ireturn // zap.Option is the contract.
func WithLevel(lvl zapcore.Level) zap.Option {
	return zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &fixedLevelCore{Core: core, level: lvl}
	})
}
