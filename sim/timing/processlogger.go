package timing

import (
	"github.com/rs/zerolog"

	"github.com/sarchlab/fifosim/sim/hooking"
)

// ProcessLogger is a hook that logs process dispatches and clock advances at
// debug level.
type ProcessLogger struct {
	logger zerolog.Logger
}

// NewProcessLogger returns a new ProcessLogger that writes into the logger.
func NewProcessLogger(logger zerolog.Logger) *ProcessLogger {
	return &ProcessLogger{logger: logger}
}

// Func writes the dispatch information into the logger.
func (h *ProcessLogger) Func(ctx hooking.HookCtx) {
	now, _ := ctx.Detail.(VTime)

	switch ctx.Pos {
	case HookPosBeforeProcess:
		p, ok := ctx.Item.(*Process)
		if !ok {
			return
		}

		h.logger.Debug().
			Stringer("time", now).
			Str("process", p.Name()).
			Msg("resume")
	case HookPosAfterProcess:
		p, ok := ctx.Item.(*Process)
		if !ok {
			return
		}

		h.logger.Debug().
			Stringer("time", now).
			Str("process", p.Name()).
			Stringer("state", p.State()).
			Msg("suspend")
	case HookPosTimeAdvance:
		h.logger.Debug().
			Stringer("time", now).
			Msg("advance")
	}
}
