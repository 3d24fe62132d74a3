// Package payload turns notification payloads of any wire shape into
// model.CanonicalPayload. The backend emits the payload either as an object
// or as a JSON string, with PascalCase or camelCase keys depending on the
// serializer that produced it. Normalization happens once at the boundary;
// nothing downstream inspects key casing.
package payload

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/nhle/brancard/internal/model"
)

// Normalize converts raw into a canonical payload using the current time
// for a missing processedAt. It never panics and never fails.
//
// Accepted inputs are nil, string, []byte, json.RawMessage and already
// decoded JSON values (map[string]any, model.CanonicalPayload). Anything
// else yields the default payload.
func Normalize(raw any) model.CanonicalPayload {
	return NormalizeAt(raw, time.Now())
}

// NormalizeAt is Normalize with an explicit clock.
func NormalizeAt(raw any, now time.Time) model.CanonicalPayload {
	obj, ok := decodeObject(raw)
	if !ok {
		return Default(now)
	}
	return build(NormalizeKeys(obj).(map[string]any), now)
}

// Default returns the payload used when the source is absent or malformed.
func Default(now time.Time) model.CanonicalPayload {
	return model.CanonicalPayload{
		Title:       model.DefaultNotificationTitle,
		ProcessedAt: now.UTC().Format(time.RFC3339Nano),
	}
}

// NormalizeKeys returns a copy of v where every object key, at every depth
// and inside arrays, has its first character lowercased. When two keys
// collide, as Title and title do, the key already in camelCase wins.
func NormalizeKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		from := make(map[string]string, len(t))
		for k, val := range t {
			ck := camelKey(k)
			if prev, ok := from[ck]; ok && !wins(k, prev, ck) {
				continue
			}
			from[ck] = k
			out[ck] = NormalizeKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = NormalizeKeys(val)
		}
		return out
	default:
		return v
	}
}

// wins reports whether key k replaces prev as the source of ck. The order
// does not depend on map iteration.
func wins(k, prev, ck string) bool {
	switch {
	case prev == ck:
		return false
	case k == ck:
		return true
	default:
		return k > prev
	}
}

func camelKey(k string) string {
	r, size := utf8.DecodeRuneInString(k)
	if r == utf8.RuneError || unicode.IsLower(r) {
		return k
	}
	return string(unicode.ToLower(r)) + k[size:]
}

// decodeObject resolves raw to a JSON object. ok is false when raw is
// absent, not valid JSON, or not an object.
func decodeObject(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return v, true
	case model.CanonicalPayload:
		return canonicalToMap(v)
	case *model.CanonicalPayload:
		if v == nil {
			return nil, false
		}
		return canonicalToMap(*v)
	case string:
		return parseObject([]byte(v), 1)
	case []byte:
		return parseObject(v, 1)
	case json.RawMessage:
		return parseObject(v, 1)
	default:
		return nil, false
	}
}

// parseObject decodes data as a JSON object. A JSON string holding an
// object is unwrapped up to depth more times, which covers payloads that
// were serialized twice before being embedded in a response.
func parseObject(data []byte, depth int) (map[string]any, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false
	}

	var decoded any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, false
	}

	switch v := decoded.(type) {
	case map[string]any:
		return v, true
	case string:
		if depth <= 0 {
			return nil, false
		}
		return parseObject([]byte(v), depth-1)
	default:
		return nil, false
	}
}

func canonicalToMap(p model.CanonicalPayload) (map[string]any, bool) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, false
	}
	return parseObject(data, 0)
}

func build(r map[string]any, now time.Time) model.CanonicalPayload {
	out := Default(now)

	if s, ok := r["title"].(string); ok {
		out.Title = s
	}
	if s, ok := r["body"].(string); ok {
		out.Body = s
	}
	if s, ok := r["redirectUrl"].(string); ok {
		out.RedirectURL = s
	}
	if s, ok := r["templateCode"].(string); ok {
		out.TemplateCode = s
	}
	if s, ok := r["processedAt"].(string); ok && s != "" {
		out.ProcessedAt = s
	}
	out.OriginalPayload = originalPayload(r["originalPayload"])
	out.UserID = userID(r["userId"])

	return out
}

func originalPayload(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case string:
		obj, ok := parseObject([]byte(t), 0)
		if !ok {
			return nil
		}
		return NormalizeKeys(obj).(map[string]any)
	default:
		return nil
	}
}

func userID(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	default:
		return nil
	}
	return &s
}
