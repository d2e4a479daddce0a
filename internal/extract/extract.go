// Package extract pulls a textual answer out of raw backend output.
//
// The CLI backends emit JSON whose shape changes between versions, so
// extraction is deliberately tolerant: try the backend's candidate
// fields against a parsed JSON object, fall back to a string rendering
// of whatever did parse, and finally fall back to the trimmed raw text.
// Extract never fails.
package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Extract returns the first present candidate field from raw parsed as
// a JSON object, trying fields in priority order. Field entries may be
// plain keys ("result") or dotted paths with an index ("content[0].text").
//
// If raw parses to a non-object JSON value its string rendering is
// returned; if no candidate field is present, the object's compact JSON
// rendering; if raw is not JSON at all, the trimmed raw text verbatim.
func Extract(raw []byte, fields []string) string {
	var parsed interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return strings.TrimSpace(string(raw))
	}

	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return render(parsed)
	}

	for _, field := range fields {
		if v, found := lookup(obj, field); found {
			return render(v)
		}
	}
	return render(obj)
}

// lookup resolves a field path against a decoded JSON object. A path
// is dot-separated segments, each a key with an optional [i] suffix.
func lookup(obj map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = obj

	for _, seg := range strings.Split(path, ".") {
		key, idx, indexed := splitIndex(seg)

		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}

		if indexed {
			arr, ok := cur.([]interface{})
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
		}
	}
	return cur, true
}

// splitIndex splits "content[0]" into ("content", 0, true). Segments
// without a well-formed index come back unindexed and are treated as
// plain keys.
func splitIndex(seg string) (string, int, bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 || !strings.HasSuffix(seg, "]") {
		return seg, 0, false
	}
	idx, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil {
		return seg, 0, false
	}
	return seg[:open], idx, true
}

// render converts a decoded JSON value to text. Strings pass through
// unquoted; everything else gets a compact JSON rendering.
func render(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
