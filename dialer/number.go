// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package dialer

import "strings"

// NationalLength is the subscriber number length of every mapped country
const NationalLength = 10

// countryCodes lists the only countries normalized. Numbers for any other
// country must already be stored in international form.
var countryCodes = map[string]string{
	"india": "91",
	"usa":   "1",
}

// NormalizeNumber puts number into E.164 form using country when it lacks a
// country code. Numbers with a leading '+' and numbers for unmapped
// countries are returned unchanged apart from surrounding space.
func NormalizeNumber(number, country string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, "+") {
		return number
	}
	code, ok := countryCodes[strings.ToLower(strings.TrimSpace(country))]
	if !ok {
		return number
	}

	digits := digitsOf(number)
	switch {
	case len(digits) == NationalLength:
		return "+" + code + digits
	case len(digits) == len(code)+NationalLength && strings.HasPrefix(digits, code):
		return "+" + digits
	default:
		return number
	}
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
