package app

import (
	"log/slog"
	"strconv"
	"strings"
)

const redacted = "[redacted]"

// secretKeys never reach a log sink in clear text.
var secretKeys = map[string]bool{
	"password":      true,
	"password_hash": true,
	"token":         true,
	"api_key":       true,
	"secret":        true,
	"authorization": true,
}

// redactAttr is the slog ReplaceAttr hook shared by the JSON and pretty
// handlers: secrets are replaced and e-mail addresses are masked.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	switch {
	case secretKeys[key]:
		return slog.String(a.Key, redacted)
	case key == "email" || strings.HasSuffix(key, "_email"):
		return slog.String(a.Key, maskEmail(a.Value.Resolve().String()))
	}
	return a
}

// maskEmail keeps the first rune of the local part and the domain:
// "alice@example.com" becomes "a***@example.com".
func maskEmail(s string) string {
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" {
		return redacted
	}
	first := []rune(local)[0]
	return string(first) + "***@" + domain
}

// fieldFormatter renders one attribute value for the pretty handler.
type fieldFormatter func(v slog.Value, color bool) string

// prettyFields maps leaf attribute keys to their renderers. Keys not listed
// fall back to plain quoting.
var prettyFields = map[string]fieldFormatter{
	// http.request
	"method": func(v slog.Value, c bool) string {
		return colorizeHTTPMethod(strings.ToUpper(strings.TrimSpace(v.String())), c)
	},
	"path": func(v slog.Value, c bool) string {
		return paint(strings.TrimSpace(v.String()), ansiCyan, c)
	},
	"status":       intField(colorizeStatusCode),
	"status_class": textField(colorizeStatusClass),
	"duration_ms": func(v slog.Value, c bool) string {
		if n, ok := valueToInt64(v); ok {
			return colorizeDurationMS(n, c)
		}
		return quoteIfNeeded(valueToString(v))
	},
	"result": textField(colorizeResult),

	// quota and outbox
	"questions_available": intField(colorizeQuota),
	"remaining":           intField(colorizeQuota),
	"attempts":            intField(colorizeAttempts),
	"failures":            intField(colorizeAttempts),
	"score":               colorizeScore,
	"group":               textField(colorizeGroup),
	"referral_applied": func(v slog.Value, c bool) string {
		if v.Kind() == slog.KindBool && v.Bool() {
			return paint("true", ansiGreen, c)
		}
		return valueToString(v)
	},

	// identifiers and failures
	"account_id": dimField,
	"session_id": dimField,
	"outcome_id": dimField,
	"err": func(v slog.Value, c bool) string {
		return paint(quoteIfNeeded(valueToString(v)), ansiRed, c)
	},
	"cause": func(v slog.Value, c bool) string {
		return paint(quoteIfNeeded(valueToString(v)), ansiRed, c)
	},
}

func intField(f func(int, bool) string) fieldFormatter {
	return func(v slog.Value, c bool) string {
		if n, ok := valueToInt64(v); ok {
			return f(int(n), c)
		}
		return quoteIfNeeded(valueToString(v))
	}
}

func textField(f func(string, bool) string) fieldFormatter {
	return func(v slog.Value, c bool) string {
		return f(strings.ToLower(strings.TrimSpace(v.String())), c)
	}
}

func dimField(v slog.Value, c bool) string {
	return paint(quoteIfNeeded(valueToString(v)), ansiDim, c)
}

// colorizeQuota flags accounts that are about to run out of questions.
func colorizeQuota(n int, color bool) string {
	s := strconv.Itoa(n)
	switch {
	case n <= 0:
		return paint(s, ansiRed, color)
	case n <= 2:
		return paint(s, ansiYellow, color)
	default:
		return paint(s, ansiGreen, color)
	}
}

func colorizeAttempts(n int, color bool) string {
	s := strconv.Itoa(n)
	if n > 1 {
		return paint(s, ansiYellow, color)
	}
	return s
}

// colorizeScore prints an evaluation score with one decimal.
func colorizeScore(v slog.Value, color bool) string {
	var f float64
	switch v.Kind() {
	case slog.KindFloat64:
		f = v.Float64()
	case slog.KindInt64:
		f = float64(v.Int64())
	default:
		return quoteIfNeeded(valueToString(v))
	}
	s := strconv.FormatFloat(f, 'f', 1, 64)
	switch {
	case f < 4:
		return paint(s, ansiRed, color)
	case f < 7:
		return paint(s, ansiYellow, color)
	default:
		return paint(s, ansiGreen, color)
	}
}

func colorizeGroup(g string, color bool) string {
	g = strings.ToUpper(g)
	switch g {
	case "A":
		return paint(g, ansiCyan, color)
	case "B":
		return paint(g, ansiMagenta, color)
	default:
		return g
	}
}

// componentColors tints the first segment of an event name ("quota" in
// "quota.register.ok").
var componentColors = map[string]string{
	"http":     ansiCyan,
	"api":      ansiCyan,
	"quota":    ansiGreen,
	"outbox":   ansiYellow,
	"scoring":  ansiMagenta,
	"ws":       ansiBlue,
	"db":       ansiBlue,
	"redis":    ansiBlue,
	"settings": ansiBlue,
}

func colorizeMessage(msg string, color bool) string {
	if !color {
		return msg
	}
	comp, rest, ok := strings.Cut(msg, ".")
	code, known := componentColors[comp]
	if !ok || !known {
		return applyBold(msg, true)
	}
	return code + comp + ansiReset + applyBold("."+rest, true)
}
