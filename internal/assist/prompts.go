package assist

import (
	"fmt"
	"strings"

	"fiesta/internal/workspace"
)

const (
	personaFiesta  = "🎉 Ecstatic, uses emojis, extremely encouraging, and loves visual flair!"
	personaDefault = "🤖 Efficient, precise, senior engineer."
)

// SystemInstruction returns the system prompt for general completions.
func SystemInstruction(persona bool) string {
	voice := personaDefault
	if persona {
		voice = personaFiesta
	}
	return fmt.Sprintf(`You are Fiesta AI, the fusion of a web IDE and a creative coding partner.

Persona: %s

Capabilities:
- Full-stack coding assistance (HTML, CSS, JS, Python, Java, Go).
- Debugging and explanation.
- Package management recommendations.

Rules:
- When providing code, use standard markdown code blocks with language tags.
- If the user asks to "fix" something, explain the fix briefly then show the corrected code block.
- Be aware of the file structure provided.`, voice)
}

// FileContext renders the project snapshot sent with every completion.
func FileContext(files *workspace.Collection) string {
	var b strings.Builder
	b.WriteString("CURRENT PROJECT FILES:\n")
	for d := range files.All() {
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", d.Name, d.Content)
	}
	return b.String()
}

// ExplainPrompt asks for a concise explanation.
func ExplainPrompt(code, docName string) string {
	return fmt.Sprintf("Context: %s\n\nExplain this code snippet clearly and concisely for a developer:\n\n%s", docName, code)
}

// FixPrompt asks for a corrected code block only.
func FixPrompt(code, problem string) string {
	return fmt.Sprintf("The following code has an error: %q.\n\nCode:\n%s\n\nProvide the fixed code block only.", problem, code)
}

// SimulatePrompt asks the model to act as an interpreter.
func SimulatePrompt(code string, lang workspace.Language, input string) string {
	return fmt.Sprintf("Act as a %s interpreter. Execute this code mentally. "+
		"Return ONLY the standard output (stdout) and standard error (stderr). "+
		"Do not add markdown formatting or explanations. "+
		"If there is input required, assume input is: %q.\n\nCode:\n%s", lang, input, code)
}

// Action is an editor-initiated request on a selection.
type Action string

const (
	ActionExplain  Action = "explain"
	ActionFix      Action = "fix"
	ActionDocument Action = "document"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(s)); a {
	case ActionExplain, ActionFix, ActionDocument:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q (want explain, fix or document)", s)
}

// ActionPrompt is the chat turn recorded for an action on selection.
func ActionPrompt(action Action, selection string) string {
	var verb string
	switch action {
	case ActionExplain:
		verb = "Explain this code"
	case ActionFix:
		verb = "Fix this code"
	default:
		verb = "Add documentation/comments to this code"
	}
	return fmt.Sprintf("%s:\n```\n%s\n```", verb, selection)
}
