package config

import (
	"math"
	"strconv"
	"strings"
)

// ParseMoney converts a decimal coin amount ("0.25") into base units.
func ParseMoney(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, false
	}
	var cents int64
	if frac != "" {
		if len(frac) > 8 {
			frac = frac[:8]
		}
		// Right-pad to base-unit precision.
		frac += strings.Repeat("0", 8-len(frac))
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || cents < 0 {
			return 0, false
		}
	}
	if units > (math.MaxInt64-cents)/Coin {
		return 0, false
	}
	return units*Coin + cents, true
}

func moneyOption(opts *RawOptions, name string, def int64) (int64, error) {
	if !opts.Has(name) {
		return def, nil
	}
	raw := opts.Get(name, "")
	amount, ok := ParseMoney(raw)
	if !ok {
		return 0, &Error{Option: name, Value: raw, Reason: "not a valid amount"}
	}
	return amount, nil
}
