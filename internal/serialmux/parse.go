package serialmux

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LineKind classifies a line emitted by the acquisition board.
type LineKind int

const (
	LineUnknown LineKind = iota
	LineSample           // comma separated channel values
	LineStatus           // "#" prefixed board message
	LineEmpty
)

func (k LineKind) String() string {
	switch k {
	case LineSample:
		return "sample"
	case LineStatus:
		return "status"
	case LineEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// ClassifyLine inspects a line without fully parsing it.
func ClassifyLine(line string) LineKind {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return LineEmpty
	case strings.HasPrefix(line, "#"):
		return LineStatus
	case line[0] == '-' || line[0] == '+' || line[0] == '.' || (line[0] >= '0' && line[0] <= '9'):
		return LineSample
	default:
		return LineUnknown
	}
}

// ParseSample parses a comma (or whitespace) separated sample line into dst,
// which is reused when large enough.
func ParseSample(line string, dst []float64) ([]float64, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\r'
	})
	if len(fields) == 0 {
		return dst[:0], fmt.Errorf("empty sample line")
	}
	dst = dst[:0]
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return dst, fmt.Errorf("channel %d: %w", i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return dst, fmt.Errorf("channel %d: non-finite value %q", i, f)
		}
		dst = append(dst, v)
	}
	return dst, nil
}
