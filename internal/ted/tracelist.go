package ted

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxTraces caps the number of traces a trace list may expand to.
const MaxTraces = 1 << 16

// ExpandTraceList expands trace-list syntax such as "1-3;5" into
// [1 2 3 5]. Whitespace-only input yields nil. Trace numbers start at 1,
// ranges must ascend and the expansion holds at most MaxTraces numbers.
func ExpandTraceList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		lo, hi, isRange := strings.Cut(item, "-")
		first, err := parseTrace(lo)
		if err != nil {
			return nil, err
		}
		if !isRange {
			if len(out) == MaxTraces {
				return nil, fmt.Errorf("trace list expands to more than %d traces", MaxTraces)
			}
			out = append(out, first)
			continue
		}
		last, err := parseTrace(hi)
		if err != nil {
			return nil, err
		}
		if last < first {
			return nil, fmt.Errorf("trace range %q is descending", item)
		}
		if last-first+1 > MaxTraces-len(out) {
			return nil, fmt.Errorf("trace list expands to more than %d traces", MaxTraces)
		}
		for n := first; n <= last; n++ {
			out = append(out, n)
		}
	}
	return out, nil
}

func parseTrace(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("trace number %q is not an integer", s)
	}
	if n < 1 {
		return 0, fmt.Errorf("trace number %d must be positive", n)
	}
	return n, nil
}

// CompactTraceList writes traces in trace-list syntax, folding ascending
// runs of consecutive numbers into ranges. Order is preserved, so
// ExpandTraceList(CompactTraceList(t)) returns t.
func CompactTraceList(traces []int) string {
	var parts []string
	for i := 0; i < len(traces); {
		j := i
		for j+1 < len(traces) && traces[j+1] == traces[j]+1 {
			j++
		}
		if j > i {
			parts = append(parts, fmt.Sprintf("%d-%d", traces[i], traces[j]))
		} else {
			parts = append(parts, strconv.Itoa(traces[i]))
		}
		i = j + 1
	}
	return strings.Join(parts, ";")
}

// Signal names the measured quantity of a waveform column.
type Signal string

const (
	SignalCurrent     Signal = "CURRENT"
	SignalVoltage     Signal = "VOLTAGE"
	SignalTemperature Signal = "TEMPERATURE"
)

const waveformPrefix = "trace_#"

// WaveformColumnName returns the conventional name of a recorded trace
// column, e.g. "trace_#3_current_pA". The unit keeps its case.
func WaveformColumnName(trace int, signal Signal, unit string) string {
	return fmt.Sprintf("%s%d_%s_%s", waveformPrefix, trace, strings.ToLower(string(signal)), unit)
}

// ParseWaveformColumnName splits a trace column name. The prefix is matched
// case-insensitively and quotes around the unit are dropped.
func ParseWaveformColumnName(name string) (trace int, signal Signal, unit string, ok bool) {
	if len(name) < len(waveformPrefix) || !strings.EqualFold(name[:len(waveformPrefix)], waveformPrefix) {
		return 0, "", "", false
	}
	parts := strings.Split(name[len(waveformPrefix):], "_")
	if len(parts) < 3 {
		return 0, "", "", false
	}
	trace, err := strconv.Atoi(parts[0])
	if err != nil || trace < 1 {
		return 0, "", "", false
	}
	unit = strings.ReplaceAll(parts[len(parts)-1], "'", "")
	signal = Signal(strings.ToUpper(parts[len(parts)-2]))
	return trace, signal, unit, true
}

// TimeColumnName returns the conventional time column name for unit,
// e.g. "t_ms".
func TimeColumnName(unit string) string {
	return "t_" + unit
}
