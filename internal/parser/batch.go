package parser

import (
	"strings"

	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

// ProgressFunc receives a completion percentage in [0, 100]
type ProgressFunc func(percent float64)

// progressEvery is how many lines pass between progress callbacks
const progressEvery = 1000

// BatchProcess parses an in-memory slice of lines in one pass.
// Blank lines are skipped; line numbers are index+1 within lines.
func BatchProcess(p Parser, lines []string, onProgress ProgressFunc) *types.ParseResult {
	result := &types.ParseResult{
		Records:   make([]*types.LogRecord, 0, len(lines)),
		Malformed: make([]*types.MalformedEntry, 0),
		Lines:     len(lines),
	}

	for i, raw := range lines {
		result.Bytes += int64(len(raw)) + 1

		line := strings.TrimSpace(raw)
		if line != "" {
			record, err := p.Parse(line)
			if err != nil {
				result.Malformed = append(result.Malformed, Malformed(i+1, raw, err))
			} else {
				result.Records = append(result.Records, record)
			}
		}

		if onProgress != nil && (i+1)%progressEvery == 0 {
			onProgress(float64(i+1) * 100 / float64(len(lines)))
		}
	}

	return result
}
