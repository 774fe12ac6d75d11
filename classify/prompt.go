package classify

import (
	"fmt"
	"strings"
)

const promptTemplate = `Classify each insurance policy passage below into exactly one type.

Types:
- exclusion: states what the policy does not cover or will not pay for
- definition: defines a term used in the policy
- limitation: deductibles, caps, maximums, sub-limits, frequency limits
- inclusion: states what the policy covers or will pay for
- procedure: steps, obligations, notification or claim requirements
- raw_text: anything else

If a passage both excludes and includes, choose exclusion.

Output ONLY valid JSON with no preamble, in this exact shape:
{"classifications":[{"index":0,"type":"exclusion"}]}
Include one entry per passage, using the passage index shown.

Passages:
%s`

// maxPassageRunes bounds each passage in the prompt.
const maxPassageRunes = 1500

func buildPrompt(texts []string) string {
	var b strings.Builder
	for i, text := range texts {
		fmt.Fprintf(&b, "[%d] %s\n", i, truncateRunes(scrub(text), maxPassageRunes))
	}
	return fmt.Sprintf(promptTemplate, b.String())
}

func scrub(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
