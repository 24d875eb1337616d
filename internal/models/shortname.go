package models

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const shortNameMinLength = 8

var (
	serverHostRe  = regexp.MustCompile(`(?i)(srvr|hst)\.?`)
	serviceRe     = regexp.MustCompile(`(?i)srvc`)
	leadDigitsRe  = regexp.MustCompile(`^\.?\d+\.?`)
	leadNonWordRe = regexp.MustCompile(`^[^\p{L}\p{N}_]+`)
)

// ShortName compresses a process or slot name into a compact label for dense
// report lines. Names shorter than eight characters are returned unchanged.
// Slot names get a "w3wp:" prefix.
func ShortName(name string, kind HostingKind) string {
	if utf8.RuneCountInString(name) < shortNameMinLength {
		return name
	}

	// only lowercase vowels; uppercase ones survive
	n := strings.Map(func(r rune) rune {
		if strings.ContainsRune("aeiou", r) {
			return -1
		}
		return r
	}, name)

	n = trimDots(serverHostRe.ReplaceAllString(n, ""))
	n = trimDots(serviceRe.ReplaceAllString(n, "svc"))
	n = trimDots(leadDigitsRe.ReplaceAllString(n, ""))
	n = trimDots(leadNonWordRe.ReplaceAllString(n, ""))

	if kind == HostingSlot {
		return "w3wp:" + n
	}
	return n
}

func trimDots(s string) string {
	return strings.Trim(s, ".")
}
