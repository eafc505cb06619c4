package coordination

import (
	"regexp"
	"strings"

	"github.com/ShayCichocki/veda/pkg/models"
)

const (
	// VerdictBeneficial marks a response recommending coordination.
	VerdictBeneficial = "COORDINATE_BENEFICIAL"
	// VerdictSingle marks a response recommending a single instance.
	VerdictSingle = "SINGLE_INSTANCE_SUFFICIENT"

	// NoScope is used when a subtask line carries no SCOPE field.
	NoScope = "No specific scope"
)

var (
	thinkBlock  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	subtaskLine = regexp.MustCompile(`^SUBTASK_\d+\s*:\s*(.*)$`)
)

// explicitPhrases signal an explicit request for multiple instances.
var explicitPhrases = []string{
	"spawn additional instances",
	"multiple instances",
	"parallel processing",
	"divide and conquer",
	"coordinate with other instances",
	"split this task",
	"work in parallel",
}

// ExplicitRequest reports whether text explicitly asks for multiple
// instances, returning the matched phrase.
func ExplicitRequest(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, phrase := range explicitPhrases {
		if strings.Contains(lower, phrase) {
			return phrase, true
		}
	}
	return "", false
}

// StripReasoning removes <think> blocks emitted by reasoning models.
func StripReasoning(resp string) string {
	resp = thinkBlock.ReplaceAllString(resp, "")
	if idx := strings.Index(resp, "</think>"); idx >= 0 {
		resp = resp[idx+len("</think>"):]
	}
	return strings.TrimSpace(resp)
}

// ParseVerdict reads the analyzer verdict. ok is false when the response
// carries neither verdict; in that case beneficial is false.
func ParseVerdict(resp string) (beneficial, ok bool) {
	resp = StripReasoning(resp)
	b := strings.Index(resp, VerdictBeneficial)
	s := strings.Index(resp, VerdictSingle)
	switch {
	case b < 0 && s < 0:
		return false, false
	case s < 0:
		return true, true
	case b < 0:
		return false, true
	default:
		return b < s, true
	}
}

// ParseSubtasks extracts "SUBTASK_n: desc | SCOPE: s | PRIORITY: p" lines.
// Other lines are ignored. Missing scope becomes NoScope and unknown
// priorities become Medium.
func ParseSubtasks(resp string) []models.Subtask {
	var out []models.Subtask
	for _, line := range strings.Split(StripReasoning(resp), "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•> ")
		line = strings.ReplaceAll(line, "**", "")
		m := subtaskLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		parts := strings.Split(m[1], "|")
		desc := unbracket(parts[0])
		if desc == "" {
			continue
		}
		st := models.Subtask{Description: desc, Scope: NoScope, Priority: models.PriorityMedium}
		for _, part := range parts[1:] {
			key, val, found := strings.Cut(part, ":")
			if !found {
				continue
			}
			switch strings.ToUpper(strings.TrimSpace(key)) {
			case "SCOPE":
				if v := unbracket(val); v != "" {
					st.Scope = v
				}
			case "PRIORITY":
				st.Priority = models.ParsePriority(val)
			}
		}
		out = append(out, st)
	}
	return out
}

func unbracket(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
