package pipeline

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	progressStart    = 5
	progressChunkEnd = 80
)

// progressReporter forwards best-effort progress. Callback panics are
// logged and swallowed.
type progressReporter struct {
	fn      ProgressFunc
	logger  *zap.Logger
	percent int
}

func newProgressReporter(fn ProgressFunc, logger *zap.Logger) *progressReporter {
	return &progressReporter{fn: fn, logger: logger, percent: progressStart}
}

func (p *progressReporter) report(message string, percent int) {
	if p.fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("progress callback panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	p.fn(message, percent)
}

// chunk advances toward progressChunkEnd: proportionally when the total is
// known, otherwise by half the remaining distance.
func (p *progressReporter) chunk(chunks, processed, total int) {
	next := p.percent
	if total > 0 {
		next = progressStart + (progressChunkEnd-progressStart)*processed/total
	} else {
		next += (progressChunkEnd - p.percent + 1) / 2
	}
	if next > progressChunkEnd {
		next = progressChunkEnd
	}
	if next < p.percent {
		next = p.percent
	}
	p.percent = next
	p.report(fmt.Sprintf("processed chunk %d (%d records)", chunks, processed), next)
}
