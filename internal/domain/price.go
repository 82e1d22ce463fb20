package domain

import (
	"strconv"
	"strings"
)

// ParsePrice normalizes a raw crawled price string to won.
// Accepts values like "12,345", "12,345원", "₩12,345" or "12345.0".
// Returns nil for empty or unparseable input rather than an error;
// crawlers routinely hand back blanks for out-of-stock items.
func ParsePrice(raw string) *int64 {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, "원", "")
	cleaned = strings.ReplaceAll(cleaned, "₩", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || f < 0 {
		return nil
	}

	v := int64(f)
	return &v
}
