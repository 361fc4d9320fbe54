package prompt

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"rag-agent-be/internal/constant"
	"rag-agent-be/pkg/llm"
	"rag-agent-be/pkg/store"
)

// ErrBudgetExceeded is returned when the system prompt, the query and the
// selection alone do not fit the character budget.
var ErrBudgetExceeded = errors.New("prompt budget exceeded by mandatory parts")

const (
	tagHighlighted = "highlighted_text"
	tagBookContext = "book_context"
	tagHistory     = "conversation_history"
	tagQuestion    = "user_question"

	answerInstruction = "Answer the question using the material above."
)

// Input is everything a single turn can contribute to the prompt.
// Selection is empty when there is none or it has gone stale.
type Input struct {
	SystemPrompt string
	Query        string
	Selection    string
	Passages     []store.Passage
	History      []llm.Message // chronological
}

// PromptContext is the bounded prompt actually sent to the model.
type PromptContext struct {
	System   string
	Body     string
	Passages []store.Passage // included passages, descending score
	History  []llm.Message   // included history, chronological
}

// Messages renders the context as a system + user exchange.
func (p *PromptContext) Messages() []llm.Message {
	return []llm.Message{
		{Role: constant.ChatMessageRoleSystem, Content: p.System},
		{Role: constant.ChatMessageRoleUser, Content: p.Body},
	}
}

// Chars is the budgeted size of the prompt.
func (p *PromptContext) Chars() int {
	return utf8.RuneCountInString(p.System) + utf8.RuneCountInString(p.Body)
}

type Assembler struct {
	budgetChars     int
	passageMaxChars int
}

func NewAssembler(budgetChars, passageMaxChars int) *Assembler {
	return &Assembler{budgetChars: budgetChars, passageMaxChars: passageMaxChars}
}

// Assemble fills the budget in priority order: system prompt, query and
// selection always; then passages by descending score; then, only when every
// passage fit, history from newest to oldest. Each optional section stops at
// the first item that does not fit.
func (a *Assembler) Assemble(in Input) (*PromptContext, error) {
	question := block(tagQuestion, in.Query) + answerInstruction
	var highlighted string
	if strings.TrimSpace(in.Selection) != "" {
		highlighted = block(tagHighlighted, in.Selection)
	}

	used := runes(in.SystemPrompt) + runes(question) + runes(highlighted)
	if used > a.budgetChars {
		return nil, fmt.Errorf("%w: need %d of %d chars", ErrBudgetExceeded, used, a.budgetChars)
	}
	remaining := a.budgetChars - used

	passages := make([]store.Passage, len(in.Passages))
	copy(passages, in.Passages)
	store.SortByScore(passages)

	var included []store.Passage
	truncated := false
	var passageEntries []string
	for _, p := range passages {
		p.Text = clip(p.Text, a.passageMaxChars)
		entry := passageEntry(p)
		cost := runes(entry)
		if len(included) == 0 {
			cost += wrapperCost(tagBookContext)
		}
		if cost > remaining {
			truncated = true
			break
		}
		remaining -= cost
		included = append(included, p)
		passageEntries = append(passageEntries, entry)
	}

	var kept []llm.Message
	var historyEntries []string
	// history is dropped entirely before any passage is
	for i := len(in.History) - 1; i >= 0 && !truncated; i-- {
		entry := historyEntry(in.History[i])
		cost := runes(entry)
		if len(kept) == 0 {
			cost += wrapperCost(tagHistory)
		}
		if cost > remaining {
			break
		}
		remaining -= cost
		kept = append(kept, in.History[i])
		historyEntries = append(historyEntries, entry)
	}
	slices.Reverse(kept)
	slices.Reverse(historyEntries)

	var body strings.Builder
	body.WriteString(highlighted)
	if len(passageEntries) > 0 {
		body.WriteString(block(tagBookContext, strings.Join(passageEntries, "")))
	}
	if len(historyEntries) > 0 {
		body.WriteString(block(tagHistory, strings.Join(historyEntries, "")))
	}
	body.WriteString(question)

	return &PromptContext{
		System:   in.SystemPrompt,
		Body:     body.String(),
		Passages: included,
		History:  kept,
	}, nil
}

// MandatoryFraming is the fixed overhead wrapped around the query and the
// selection, the two parts that are never dropped.
func MandatoryFraming() int {
	return runes(block(tagQuestion, "")+answerInstruction) + runes(block(tagHighlighted, ""))
}

func block(tag, content string) string {
	return "<" + tag + ">\n" + content + "\n</" + tag + ">\n\n"
}

func wrapperCost(tag string) int {
	return runes(block(tag, ""))
}

func passageEntry(p store.Passage) string {
	var b strings.Builder
	if p.Header != "" {
		b.WriteString("Section: " + p.Header + "\n")
	}
	if p.URL != "" {
		b.WriteString("Source: " + p.URL + "\n")
	}
	b.WriteString(p.Text)
	b.WriteString("\n\n")
	return b.String()
}

func historyEntry(m llm.Message) string {
	return m.Role + ": " + m.Content + "\n"
}

func clip(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func runes(s string) int {
	return utf8.RuneCountInString(s)
}
