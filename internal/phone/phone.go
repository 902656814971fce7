// Package phone normalizes Brazilian phone numbers into canonical E.164 form
// and merges multi-source phone lists. Pure functions, no I/O.
package phone

import "strings"

const countryCode = "55"

// Kind distinguishes mobile and landline numbers.
type Kind int

const (
	KindInvalid Kind = iota
	KindMobile
	KindLandline
)

// Normalize converts an arbitrary raw phone string into canonical form:
// "+55" + 2-digit area code + subscriber number. Returns "" for anything
// that does not resolve to a valid Brazilian number.
//
// Accepted shapes after stripping non-digits and leading zeros:
//   - 10 digits: area + 8-digit landline subscriber
//   - 11 digits: area + 9-digit mobile subscriber
//   - 12 or 13 digits with the 55 country prefix already present
func Normalize(raw string) string {
	digits := stripNonDigits(raw)
	digits = strings.TrimLeft(digits, "0")

	switch len(digits) {
	case 10, 11:
		digits = countryCode + digits
	case 12, 13:
		if !strings.HasPrefix(digits, countryCode) {
			return ""
		}
	default:
		return ""
	}

	if classify(digits) == KindInvalid {
		return ""
	}
	return "+" + digits
}

// Classify returns the kind of an already-canonical phone string.
func Classify(canonical string) Kind {
	if !strings.HasPrefix(canonical, "+") {
		return KindInvalid
	}
	return classify(canonical[1:])
}

// IsMobile reports whether the canonical phone is a mobile number.
func IsMobile(canonical string) bool {
	return Classify(canonical) == KindMobile
}

// classify inspects country-prefixed digits (no leading "+").
func classify(digits string) Kind {
	if !strings.HasPrefix(digits, countryCode) {
		return KindInvalid
	}
	rest := digits[len(countryCode):]
	if len(rest) < 10 {
		return KindInvalid
	}

	area := rest[:2]
	if area[0] == '0' || area == "10" { // area code must be in [11,99]
		return KindInvalid
	}

	sub := rest[2:]
	switch len(sub) {
	case 9:
		if sub[0] == '9' {
			return KindMobile
		}
	case 8:
		if sub[0] >= '2' && sub[0] <= '5' {
			return KindLandline
		}
	}
	return KindInvalid
}

// ParseList splits a raw multi-phone string on comma, semicolon or slash and
// normalizes each segment. Invalid segments are dropped silently; one bad
// entry never fails the list.
func ParseList(raw string) []string {
	segments := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '/'
	})
	var out []string
	for _, seg := range segments {
		if p := Normalize(seg); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Merge unions the numbers already in the canonical joined string with all
// valid numbers parsed from the raw sources, deduplicates by exact canonical
// form, orders mobiles before landlines, and joins with ", ". Within each
// class insertion order is preserved, which makes the merge idempotent.
// Returns "" only when the union is empty.
func Merge(existing string, sources ...string) string {
	seen := make(map[string]bool)
	var mobiles, landlines []string

	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		if IsMobile(p) {
			mobiles = append(mobiles, p)
		} else {
			landlines = append(landlines, p)
		}
	}

	for _, p := range strings.Split(existing, ",") {
		add(Normalize(p))
	}
	for _, src := range sources {
		for _, p := range ParseList(src) {
			add(p)
		}
	}

	all := append(mobiles, landlines...)
	return strings.Join(all, ", ")
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
