package mcpfleet

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RenderContent turns a tools/call result's content array into a single
// string for the model, per the fixed policy: text fragments are
// concatenated with newlines, image/audio fragments render as
// "[Image: <mime>]" / "[Audio: <mime>]", and any fragment carrying a
// structured Object renders as pretty-printed JSON.
func RenderContent(fragments []ContentFragment) string {
	var parts []string
	for _, f := range fragments {
		switch {
		case len(f.Object) > 0:
			parts = append(parts, prettyJSON(f.Object))
		case f.Type == "image":
			parts = append(parts, "[Image: "+f.MimeType+"]")
		case f.Type == "audio":
			parts = append(parts, "[Audio: "+f.MimeType+"]")
		default:
			parts = append(parts, f.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
