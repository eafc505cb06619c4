package stall

import (
	"fmt"
	"regexp"
	"strings"
)

// replyMarker precedes the text the analyzer wants sent to the instance.
const replyMarker = "MESSAGE_TO_CLAUDE_WITH_VERDICT:"

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Prompt builds the analyzer prompt for a stalled conversation.
func Prompt(t Trigger) string {
	last := t.LastAssistant
	if last == "" {
		last = "(no response yet)"
	}
	user := strings.Join(t.RecentUser, "\n---\n")
	if user == "" {
		user = "(none)"
	}

	return fmt.Sprintf(`You are assisting a conversation between a user and Claude, an AI coding assistant. The conversation has been idle for %d seconds.

Claude's last message was:
"""
%s
"""

The user's recent requests were:
"""
%s
"""

An idle conversation usually means Claude is waiting for input or finished a step without confirming success.

Reply with ONE short, action-oriented message to Claude that moves the work forward:
1. If Claude used tools and may have finished, ask it to confirm success and summarise what changed.
2. If Claude seems to be waiting for a decision, make the most reasonable decision and say so.
3. If code changed but was not verified, ask Claude to run the tests and fix failures.
4. If there is a web UI, ask Claude to exercise it end to end.
5. If the work looks complete, ask Claude to list any remaining follow-ups.

%s`, int(t.Idle.Seconds()), last, user, replyMarker)
}

// ExtractReply returns the message to forward to the instance from a raw
// analyzer response. Reasoning blocks are removed.
func ExtractReply(resp string) string {
	if idx := strings.LastIndex(resp, replyMarker); idx >= 0 {
		resp = resp[idx+len(replyMarker):]
	}
	resp = thinkBlock.ReplaceAllString(resp, "")
	if idx := strings.Index(resp, "</think>"); idx >= 0 {
		resp = resp[idx+len("</think>"):]
	}
	return strings.TrimSpace(resp)
}
