package cost

import (
	"fmt"
	"sort"
)

var presets = map[string]func() *Standard{
	"us_equity": func() *Standard {
		return NewStandard(Schedule{}, LinearSlippage{Base: 0.0001, Impact: 0.01})
	},
	"crypto": func() *Standard {
		return NewStandard(Schedule{MakerRate: 0.001, TakerRate: 0.001}, SqrtSlippage{Base: 0.0005, Impact: 0.1})
	},
	"forex": func() *Standard {
		return NewStandard(Schedule{}, LinearSlippage{Base: 0.00005, Impact: 0.005})
	},
}

// Preset returns a named cost model: us_equity, crypto or forex.
func Preset(name string) (*Standard, error) {
	fn, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown cost preset %q (have %v)", name, PresetNames())
	}
	return fn(), nil
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
