package core

import "strings"

// ExtractOutcome enumerates how a JSON payload was located inside raw model
// output, so parse failures can be attributed to a specific path.
type ExtractOutcome int

const (
	// ExtractEmpty: nothing usable in the input.
	ExtractEmpty ExtractOutcome = iota
	// ExtractBare: no code fence found, the whole text is the candidate payload.
	ExtractBare
	// ExtractFenced: payload taken from the first untagged ``` fence.
	ExtractFenced
	// ExtractFencedJSON: payload taken from the first ```json fence.
	ExtractFencedJSON
)

const codeFence = "```"

// ExtractJSONBlock scans model output for a JSON payload. It takes the body of
// the first markdown code fence (optionally tagged "json") when one is present,
// otherwise the whole trimmed text. An unterminated fence takes the remainder
// of the input.
func ExtractJSONBlock(raw string) (string, ExtractOutcome) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ExtractEmpty
	}

	// scan-for-fence
	start := strings.Index(text, codeFence)
	if start == -1 {
		return text, ExtractBare
	}

	body := text[start+len(codeFence):]
	outcome := ExtractFenced
	if strings.HasPrefix(body, "json") {
		body = body[len("json"):]
		outcome = ExtractFencedJSON
	}

	// extract-fenced-body
	if end := strings.Index(body, codeFence); end != -1 {
		body = body[:end]
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return "", ExtractEmpty
	}
	return body, outcome
}
