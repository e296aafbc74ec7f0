package fsxml

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"pbx-admin/internal/models"
)

// Fixed dial patterns for the outbound presets.
var presetPatterns = map[models.OutboundPreset]string{
	models.PresetLocal: `^([2-5]\d{7})$`,
	models.PresetLDN:   `^(0\d{2}[1-9]{2}\d{8,9})$`,
	models.PresetMovel: `^(9\d{8})$`,
}

// FallbackOutboundPattern matches any 8 to 15 digit number.
const FallbackOutboundPattern = `^(\d{8,15})$`

// PresetPattern returns the regex for a preset and whether the preset is known.
func PresetPattern(p models.OutboundPreset) (string, bool) {
	expr, ok := presetPatterns[p]
	return expr, ok
}

// OutboundPattern resolves the condition expression of a route: explicit
// pattern first, then preset, then the catch-all.
func OutboundPattern(r *models.OutboundRoute) string {
	if p := strings.TrimSpace(r.Pattern); p != "" {
		return p
	}
	if p, ok := presetPatterns[r.Preset]; ok {
		return p
	}
	return FallbackOutboundPattern
}

// dialedNumberRef is what the bridge string uses for the matched number:
// the first capture group when the pattern has one.
func dialedNumberRef(expr string) string {
	re, err := regexp.Compile(expr)
	if err != nil || re.NumSubexp() == 0 {
		return "${destination_number}"
	}
	return "$1"
}

// ExtensionRangePattern builds the expression for the local extension rule.
// 1000-1999 gives ^(1\d{3})$; bounds of different length give ^(\d{a,b})$.
func ExtensionRangePattern(start, end int) string {
	s, e := strconv.Itoa(start), strconv.Itoa(end)
	if len(s) != len(e) {
		return fmt.Sprintf(`^(\d{%d,%d})$`, len(s), len(e))
	}

	i := 0
	for i < len(s) && s[i] == e[i] {
		i++
	}
	prefix, rest := s[:i], len(s)-i
	if rest == 0 {
		return "^(" + prefix + ")$"
	}
	return fmt.Sprintf(`^(%s\d{%d})$`, prefix, rest)
}

// exactPattern anchors a literal number, or passes through values that are
// already regular expressions.
func exactPattern(value string) string {
	if strings.HasPrefix(value, "^") {
		return value
	}
	return "^" + regexp.QuoteMeta(value) + "$"
}
