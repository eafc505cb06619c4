package coordination

import (
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/veda/pkg/models"
)

// AnalysisPrompt asks whether message describes work that decomposes into
// independent parallel subtasks.
func AnalysisPrompt(message string) string {
	return fmt.Sprintf(`Does this task decompose into independent, separable subtasks suitable for parallel Claude Code instances working in the same repository?

Task:
"""
%s
"""

Coordination tends to help when:
1. The codebase has several independent components or modules
2. Several separate features can be developed at the same time
3. The request reads like "implement X, Y and Z" with separable parts
4. Several components need testing or documentation independently
5. A refactor can be divided along file or module boundaries

Respond with EXACTLY one of:
%s: [brief reason]
%s: [brief reason]`, message, VerdictBeneficial, VerdictSingle)
}

// BreakdownPrompt asks for n parallel subtasks in the SUBTASK line format.
func BreakdownPrompt(task, workDir string, n int) string {
	if n < 1 {
		n = 3
	}
	var lines strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&lines, "SUBTASK_%d: [Description] | SCOPE: [Files/directories] | PRIORITY: [High/Medium/Low]\n", i)
	}
	return fmt.Sprintf(`Break this task into %d parallel subtasks, each handled by a separate Claude Code instance.

Main task:
"""
%s
"""
Working directory: %s

Requirements:
1. Subtasks must be independent and workable in parallel
2. Each subtask must be specific and actionable
3. Give each subtask a file or directory scope so instances do not conflict
4. Together the subtasks must complete the main task

Respond only with lines in this format:
%s`, n, task, workDir, lines.String())
}

// Instruction is the first message sent to an instance spawned for st.
func Instruction(st models.Subtask, workDir string) string {
	return fmt.Sprintf(`MULTI-INSTANCE COORDINATION MODE

You are one of several Claude Code instances working on a shared codebase at the same time.

YOUR ASSIGNED SUBTASK: %s
SCOPE: %s
PRIORITY: %s
WORKING DIRECTORY: %s

COORDINATION PROTOCOL:
1. Work ONLY inside your assigned scope. Other instances own the rest.
2. Use the veda_list_instances tool to see which instances are active.
3. Do not revert or reformat files outside your scope.
4. When finished, summarise what you changed and anything left for other instances.`,
		st.Description, st.Scope, st.Priority, workDir)
}

// FallbackMessage is the system message recorded when coordination analysis
// did not succeed and the task continues on a single instance.
func FallbackMessage(kind OutcomeKind, err error, timeout time.Duration) string {
	switch kind {
	case OutcomeTimeout:
		return fmt.Sprintf("Coordination analysis timed out after %s - continuing with a single instance.", timeout)
	default:
		if err != nil {
			return fmt.Sprintf("Coordination analysis failed (%v) - continuing with a single instance.", err)
		}
		return "Coordination analysis failed - continuing with a single instance."
	}
}
