package printerclient

import (
	"encoding/base64"
	"strings"
)

// decodeInlineThumbnail extracts a thumbnail the printer embeds directly in
// a file-listing entry as a data-URI-style base64 blob (observed on CC2
// firmware: a "thumbnail" field of the form "data:image/png;base64,...").
// FetchThumbnail only issues a wire round-trip when this is absent.
func decodeInlineThumbnail(m map[string]any) ([]byte, bool) {
	raw, ok := m["thumbnail"].(string)
	if !ok || raw == "" {
		return nil, false
	}
	if idx := strings.Index(raw, ","); idx >= 0 && strings.HasPrefix(raw, "data:") {
		raw = raw[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, false
	}
	return data, true
}
