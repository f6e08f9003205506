package textutil

import "strings"

// NormalizeStringMap prepares a string map for the payment gateway wire:
// keys and values are trimmed, and entries whose key trims away entirely are
// dropped. A map with nothing left normalizes to nil.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	normalized := make(map[string]string, len(values))
	for rawKey, rawValue := range values {
		key := strings.TrimSpace(rawKey)
		if key == "" {
			continue
		}
		normalized[key] = strings.TrimSpace(rawValue)
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
