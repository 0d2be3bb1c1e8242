package model

import (
	"encoding/json"
	"time"
)

// NormalizeMetadata extracts the fields the stores persist as columns and
// returns the canonical JSON encoding of the full map.
func NormalizeMetadata(meta map[string]any, fallback time.Time) (source string, lastEmbedded time.Time, jsonString string) {
	meta = CloneMetadata(meta)
	source = StringFromAny(meta["source"])
	lastEmbedded = TimeFromAny(meta["last_embedded"])
	if lastEmbedded.IsZero() {
		if fallback.IsZero() {
			fallback = time.Now().UTC()
		}
		lastEmbedded = fallback
	}
	meta["source"] = source
	meta["last_embedded"] = lastEmbedded.UTC().Format(time.RFC3339Nano)
	jsonBytes, _ := json.Marshal(meta)
	jsonString = string(jsonBytes)
	return
}

// DecodeMetadata parses a metadata JSON string back into a map. Invalid or
// empty input yields an empty map rather than an error.
func DecodeMetadata(metadata string) map[string]any {
	meta := map[string]any{}
	if metadata == "" {
		return meta
	}
	_ = json.Unmarshal([]byte(metadata), &meta)
	return meta
}

func CloneMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	cp := make(map[string]any, len(meta))
	for k, v := range meta {
		cp[k] = v
	}
	return cp
}

func StringFromAny(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func TimeFromAny(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts
		}
	}
	return time.Time{}
}
