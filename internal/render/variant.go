package render

import (
	"fmt"
	"strings"
)

// Variant selects the text-rendering constants that compensate for
// differences between browser engines. It is chosen once at startup.
type Variant int

const (
	VariantOther Variant = iota
	VariantWebKit
	VariantGecko
)

func (v Variant) String() string {
	switch v {
	case VariantWebKit:
		return "webkit"
	case VariantGecko:
		return "gecko"
	default:
		return "other"
	}
}

// ParseVariant accepts the names returned by String. An empty name is VariantOther.
func ParseVariant(name string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "other":
		return VariantOther, nil
	case "webkit", "chrome", "safari":
		return VariantWebKit, nil
	case "gecko", "mozilla", "firefox":
		return VariantGecko, nil
	}
	return VariantOther, fmt.Errorf("unknown render variant %q", name)
}

// DetectVariant sniffs a user-agent string. Chrome and Safari count as
// WebKit; anything else announcing itself as Mozilla counts as Gecko.
func DetectVariant(userAgent string) Variant {
	ua := strings.ToLower(userAgent)
	if strings.Contains(ua, "chrome") || strings.Contains(ua, "safari") {
		return VariantWebKit
	}
	if strings.Contains(ua, "mozilla") {
		return VariantGecko
	}
	return VariantOther
}
