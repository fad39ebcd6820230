package stats

import (
	"strings"

	"github.com/shopspring/decimal"
)

const rupee = "₹"

// FormatINR renders an amount with the rupee symbol and Indian digit grouping,
// e.g. ₹12,34,567.5 or -₹2,500. At most two fraction digits are shown.
func FormatINR(d decimal.Decimal) string {
	return withSymbol(d.Round(2).String())
}

// FormatINRWhole rounds to whole rupees before formatting.
func FormatINRWhole(d decimal.Decimal) string {
	return withSymbol(d.Round(0).String())
}

// withSymbol puts the minus sign ahead of the rupee symbol.
func withSymbol(s string) string {
	if rest, neg := strings.CutPrefix(s, "-"); neg {
		return "-" + rupee + groupIndian(rest)
	}
	return rupee + groupIndian(s)
}

// groupIndian groups the last three integer digits, then every two.
func groupIndian(s string) string {
	intPart, frac, _ := strings.Cut(s, ".")
	if len(intPart) <= 3 {
		return joinFrac(intPart, frac)
	}

	head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	groups = append(groups, tail)
	return joinFrac(strings.Join(groups, ","), frac)
}

func joinFrac(intPart, frac string) string {
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return intPart
	}
	return intPart + "." + frac
}
