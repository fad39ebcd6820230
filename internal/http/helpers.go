package http

import (
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"neovest/internal/core"
	"neovest/internal/stats"
)

// sanitizeInput removes control characters (except tab and newlines) and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// templateFuncs are available to every page and partial.
func templateFuncs(loc *time.Location) template.FuncMap {
	return template.FuncMap{
		"inr":      stats.FormatINR,
		"inrWhole": stats.FormatINRWhole,
		"percent": func(p float64) string {
			return decimal.NewFromFloat(p).Round(1).String() + "%"
		},
		"barWidth": func(p float64) string {
			return decimal.NewFromFloat(p).Round(2).String()
		},
		"date": func(t time.Time) string {
			return t.In(loc).Format("02 Jan 2006")
		},
		"isoDate": func(t time.Time) string {
			return t.In(loc).Format(dateLayout)
		},
		"methodLabel": func(p core.PaymentMethod) string {
			return p.Label()
		},
		"join": strings.Join,
	}
}
