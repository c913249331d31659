package driven

// PromptStore resolves system prompts by name.
type PromptStore interface {
	Load(name string) (string, error)

	// Reload discards cached prompts.
	Reload()
}

// Prompt names. Neither prompt takes format arguments.
const (
	PromptAnswerSystem     = "answer_system"
	PromptUngroundedSystem = "ungrounded_system"
)

// PromptStoreAware is implemented by services whose system prompts can be
// overridden. Without a store they use DefaultPrompts.
type PromptStoreAware interface {
	SetPromptStore(store PromptStore)
}

// DefaultPrompts are the built-in prompt texts.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var DefaultPrompts = map[string]string{
	PromptAnswerSystem: `You answer questions using only the numbered passages provided with the question.

Rules:
- Cite every claim with the passage number in square brackets, for example [1] or [2, 3].
- Only cite passage numbers that appear in the provided passages.
- If the passages do not contain the answer, say so plainly instead of guessing.
- Keep answers concise and factual.`,

	PromptUngroundedSystem: `No documents in the knowledge base matched the question.
Answer briefly from general knowledge, say that the knowledge base had no relevant documents, and do not cite sources.`,
}
