package calculator

import (
	"fmt"
	"math"

	"github.com/thrasher-corp/gct-ta/indicators"
)

// Indicator turns an ordered (oldest first) close series into a momentum
// score in [0,100]. ok is false when no score can be produced.
type Indicator func(closes []float64, period int) (score float64, ok bool)

// Indicator names accepted by Lookup.
const (
	EngineWilder = "wilder"
	EngineGCTTA  = "gct-ta"
)

// Lookup returns the indicator registered under name.
func Lookup(name string) (Indicator, error) {
	switch name {
	case "", EngineWilder:
		return WilderRSI, nil
	case EngineGCTTA:
		return GCTRSI, nil
	default:
		return nil, fmt.Errorf("unknown momentum indicator %q", name)
	}
}

// GCTRSI computes the RSI of the most recent close with the gct-ta library.
func GCTRSI(closes []float64, period int) (float64, bool) {
	if period <= 1 || len(closes) < period+1 {
		return 0, false
	}
	out := indicators.RSI(closes, period)
	if len(out) == 0 {
		return 0, false
	}
	v := out[len(out)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 100 {
		return 0, false
	}
	return v, true
}
