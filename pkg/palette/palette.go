// Package palette assigns display colours to mesh parts. The surface
// pipeline never calls it; viewers and exporters pick colours after meshing.
package palette

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Hue-wheel saturation and value.
const (
	WheelSaturation = 0.85
	WheelValue      = 0.95
)

const goldenRatio = 0.618033988749895

// Mapper picks the colour of a named part. index is the part's position in
// the sorted list of all part names and total is the length of that list.
type Mapper interface {
	Color(name string, index, total int) colorful.Color
}

// MapperFunc adapts a function to the Mapper interface.
type MapperFunc func(name string, index, total int) colorful.Color

// Color calls f.
func (f MapperFunc) Color(name string, index, total int) colorful.Color {
	return f(name, index, total)
}

// HueWheel spaces total colours evenly around the hue circle and returns the
// one at index.
func HueWheel(index, total int) colorful.Color {
	if total <= 0 {
		total = 1
	}
	h := 360 * float64(index%total) / float64(total)
	return colorful.Hsv(h, WheelSaturation, WheelValue)
}

// Wheel is the Mapper form of HueWheel.
var Wheel Mapper = MapperFunc(func(_ string, index, total int) colorful.Color {
	return HueWheel(index, total)
})

// GoldenRatio returns a colour for a label value by stepping the hue by the
// golden ratio, so consecutive labels land far apart on the wheel.
func GoldenRatio(label int32) colorful.Color {
	_, h := math.Modf(float64(label) * goldenRatio)
	if h < 0 {
		h++
	}
	return colorful.Hsv(360*h, 0.80, 0.90)
}

// Rule maps every part whose name contains Keyword to Color.
type Rule struct {
	Keyword string
	Color   colorful.Color
}

// ParseRules builds rules from keyword to hex colour ("#rrggbb") pairs.
func ParseRules(hex map[string]string) ([]Rule, error) {
	rules := make([]Rule, 0, len(hex))
	for kw, h := range hex {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, fmt.Errorf("palette rule %q: %w", kw, err)
		}
		rules = append(rules, Rule{Keyword: kw, Color: c})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Keyword < rules[j].Keyword })
	return rules, nil
}

// KeywordMapper colours parts by keyword. When several keywords occur in a
// name the longest one wins; names matching nothing go to the fallback.
type KeywordMapper struct {
	rules    []Rule
	fallback Mapper
}

// NewKeywordMapper returns a mapper over rules. A nil fallback selects Wheel.
func NewKeywordMapper(rules []Rule, fallback Mapper) *KeywordMapper {
	if fallback == nil {
		fallback = Wheel
	}
	m := &KeywordMapper{fallback: fallback}
	for _, r := range rules {
		if kw := normalize(r.Keyword); kw != "" {
			m.rules = append(m.rules, Rule{Keyword: kw, Color: r.Color})
		}
	}
	return m
}

// Color implements Mapper.
func (m *KeywordMapper) Color(name string, index, total int) colorful.Color {
	if r, ok := m.Match(name); ok {
		return r.Color
	}
	return m.fallback.Color(name, index, total)
}

// Match returns the rule applied to name, if any. Among equally long
// keywords the earlier rule wins.
func (m *KeywordMapper) Match(name string) (Rule, bool) {
	n := normalize(name)
	best := -1
	for i, r := range m.rules {
		if strings.Contains(n, r.Keyword) && (best < 0 || len(r.Keyword) > len(m.rules[best].Keyword)) {
			best = i
		}
	}
	if best < 0 {
		return Rule{}, false
	}
	return m.rules[best], true
}

func normalize(s string) string {
	return strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToLower(strings.TrimSpace(s)))
}

// Assign colours every name with m. Names are sorted first so the result
// does not depend on input order.
func Assign(names []string, m Mapper) map[string]colorful.Color {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	out := make(map[string]colorful.Color, len(sorted))
	for i, n := range sorted {
		out[n] = m.Color(n, i, len(sorted))
	}
	return out
}

// DefaultRules colour common vascular and cardiac structures.
func DefaultRules() []Rule {
	rgb := func(r, g, b float64) colorful.Color { return colorful.Color{R: r, G: g, B: b} }
	return []Rule{
		{"left_ventricle", rgb(0.85, 0.15, 0.15)},
		{"right_ventricle", rgb(0.80, 0.20, 0.20)},
		{"ventricle", rgb(0.82, 0.18, 0.18)},
		{"left_atrium", rgb(0.90, 0.35, 0.35)},
		{"right_atrium", rgb(0.88, 0.38, 0.38)},
		{"atrium", rgb(0.89, 0.36, 0.36)},
		{"aorta", rgb(1.0, 0.2, 0.2)},
		{"pulmonary_artery", rgb(0.95, 0.4, 0.5)},
		{"coronary", rgb(1.0, 0.5, 0.2)},
		{"artery", rgb(1.0, 0.4, 0.3)},
		{"vena_cava", rgb(0.3, 0.4, 0.9)},
		{"pulmonary_vein", rgb(0.4, 0.45, 0.95)},
		{"vein", rgb(0.35, 0.42, 0.92)},
		{"valve", rgb(0.91, 0.81, 0.44)},
		{"myocardium", rgb(0.70, 0.15, 0.15)},
		{"septum", rgb(0.78, 0.22, 0.22)},
	}
}
