package indicator

import (
	"fmt"
	"strconv"
	"strings"
)

// Param is one named numeric parameter of an indicator instance.
type Param struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// Definition is one indicator instance attached to a strategy. Params
// are assigned lazily on first compute and persisted back onto the
// owning strategy so later computations stay stable.
type Definition struct {
	ID        string  `json:"id"`
	ShortName string  `json:"short_name"`
	Params    []Param `json:"params"`
}

// defaultParams lists every supported kind with its default parameters,
// in output order. Display-only params (RSI limits) are persisted too
// but do not affect computation.
var defaultParams = map[string][]Param{
	"SMA":      {{Key: "timeperiod", Value: 30}},
	"EMA":      {{Key: "timeperiod", Value: 30}},
	"WMA":      {{Key: "timeperiod", Value: 30}},
	"DEMA":     {{Key: "timeperiod", Value: 30}},
	"TEMA":     {{Key: "timeperiod", Value: 30}},
	"TRIMA":    {{Key: "timeperiod", Value: 30}},
	"RSI":      {{Key: "timeperiod", Value: 14}, {Key: "upper_limit", Value: 70}, {Key: "middle_limit", Value: 50}, {Key: "lower_limit", Value: 30}},
	"MOM":      {{Key: "timeperiod", Value: 10}},
	"ROC":      {{Key: "timeperiod", Value: 10}},
	"CCI":      {{Key: "timeperiod", Value: 14}},
	"WILLR":    {{Key: "timeperiod", Value: 14}},
	"MFI":      {{Key: "timeperiod", Value: 14}},
	"ATR":      {{Key: "timeperiod", Value: 14}},
	"NATR":     {{Key: "timeperiod", Value: 14}},
	"ADX":      {{Key: "timeperiod", Value: 14}},
	"OBV":      {},
	"SAR":      {{Key: "acceleration", Value: 0.02}, {Key: "maximum", Value: 0.2}},
	"MACD":     {{Key: "fastperiod", Value: 12}, {Key: "slowperiod", Value: 26}, {Key: "signalperiod", Value: 9}},
	"BBANDS":   {{Key: "timeperiod", Value: 5}, {Key: "nbdevup", Value: 2}, {Key: "nbdevdn", Value: 2}},
	"STOCH":    {{Key: "fastk_period", Value: 5}, {Key: "slowk_period", Value: 3}, {Key: "slowd_period", Value: 3}},
	"STOCHRSI": {{Key: "timeperiod", Value: 14}, {Key: "fastk_period", Value: 5}, {Key: "fastd_period", Value: 3}},
	"AROON":    {{Key: "timeperiod", Value: 14}},
}

// outputSuffixes maps multi-output kinds to their column suffixes, as
// strategy authors reference them. Kinds absent here emit one column
// named after the instance itself.
var outputSuffixes = map[string][]string{
	"BBANDS":   {"upperband", "middleband", "lowerband"},
	"MACD":     {"macd", "macdsignal", "macdhist"},
	"AROON":    {"aroondown", "aroonup"},
	"STOCH":    {"slowk", "slowd"},
	"STOCHRSI": {"fastk", "fastd"},
}

// Supported reports whether the short name is a known indicator kind.
func Supported(shortName string) bool {
	_, ok := defaultParams[shortName]
	return ok
}

// ApplyDefaults fills in any missing params from the kind's defaults.
// Returns true when the definition was changed and needs persisting.
func (d *Definition) ApplyDefaults() (bool, error) {
	defaults, ok := defaultParams[d.ShortName]
	if !ok {
		return false, fmt.Errorf("unknown indicator kind %q", d.ShortName)
	}
	changed := false
	for _, def := range defaults {
		if d.param(def.Key) == nil {
			d.Params = append(d.Params, def)
			changed = true
		}
	}
	return changed, nil
}

func (d *Definition) param(key string) *Param {
	for i := range d.Params {
		if d.Params[i].Key == key {
			return &d.Params[i]
		}
	}
	return nil
}

func (d *Definition) paramValue(key string) float64 {
	if p := d.param(key); p != nil {
		return p.Value
	}
	if defaults, ok := defaultParams[d.ShortName]; ok {
		for _, def := range defaults {
			if def.Key == key {
				return def.Value
			}
		}
	}
	return 0
}

func (d *Definition) intParam(key string) int { return int(d.paramValue(key)) }

// Name is the instance name strategy rules reference: the short name
// followed by the parameter values, e.g. SMA_20 or MACD_12_26_9.
func (d *Definition) Name() string {
	parts := []string{d.ShortName}
	for _, def := range defaultParams[d.ShortName] {
		v := d.paramValue(def.Key)
		parts = append(parts, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return strings.Join(parts, "_")
}

// Columns lists the output column names this definition produces.
func (d *Definition) Columns() []string {
	name := d.Name()
	suffixes, ok := outputSuffixes[d.ShortName]
	if !ok {
		return []string{name}
	}
	cols := make([]string, len(suffixes))
	for i, s := range suffixes {
		cols[i] = name + "_" + s
	}
	return cols
}

// ExtraCandles is the warm-up lookback convention for this definition:
// twice the longest configured period, indicator-specific minimums for
// the recursively smoothed kinds.
func (d *Definition) ExtraCandles() int {
	longest := 0
	for _, p := range d.Params {
		if strings.Contains(p.Key, "period") && int(p.Value) > longest {
			longest = int(p.Value)
		}
	}
	if longest == 0 {
		longest = 30
	}
	switch d.ShortName {
	case "DEMA", "TEMA", "ADX", "MACD", "STOCHRSI":
		return 4 * longest
	default:
		return 2 * longest
	}
}
