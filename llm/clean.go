package llm

import "strings"

// StripFences removes a surrounding markdown code fence from model output.
// Models are instructed to return raw text, but some wrap responses in
// ```sql ... ``` or ```json ... ``` anyway.
func StripFences(s string) string {
	out := strings.TrimSpace(s)
	if !strings.HasPrefix(out, "```") {
		return out
	}

	// Drop the opening fence line, including any language tag.
	if idx := strings.IndexByte(out, '\n'); idx >= 0 {
		out = out[idx+1:]
	} else {
		out = strings.TrimPrefix(out, "```")
	}

	out = strings.TrimSpace(out)
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}
