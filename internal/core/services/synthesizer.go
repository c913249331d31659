package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
	"github.com/custodia-labs/kb/internal/logger"
)

// Ensure Synthesizer can receive custom prompts.
var _ driven.PromptStoreAware = (*Synthesizer)(nil)

// Synthesis defaults.
const (
	DefaultMaxPromptTokens    = 6000
	DefaultMaxHistoryMessages = 10

	// messageOverhead approximates the per-message framing tokens chat
	// formats add around content.
	messageOverhead = 4
)

// citationPattern matches [1] and [1, 2] style markers.
var citationPattern = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// Synthesizer generates cited answers from retrieved passages and
// conversation history under a prompt token budget.
type Synthesizer struct {
	llm         driven.LLMService
	counter     driven.TokenCounter
	prompts     driven.PromptStore
	maxTokens   int
	maxHistory  int
	chatOptions driven.ChatOptions
}

// SynthesizerOption configures a Synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithTokenCounter sets the prompt token counter.
func WithTokenCounter(c driven.TokenCounter) SynthesizerOption {
	return func(s *Synthesizer) {
		if c != nil {
			s.counter = c
		}
	}
}

// WithMaxPromptTokens sets the prompt budget.
func WithMaxPromptTokens(n int) SynthesizerOption {
	return func(s *Synthesizer) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithMaxHistoryMessages caps how many prior messages are considered.
func WithMaxHistoryMessages(n int) SynthesizerOption {
	return func(s *Synthesizer) {
		if n >= 0 {
			s.maxHistory = n
		}
	}
}

// WithChatOptions sets generation parameters.
func WithChatOptions(opts driven.ChatOptions) SynthesizerOption {
	return func(s *Synthesizer) {
		s.chatOptions = opts
	}
}

// NewSynthesizer creates a synthesizer backed by llm.
func NewSynthesizer(llm driven.LLMService, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		llm:        llm,
		counter:    estimateCounter{},
		maxTokens:  DefaultMaxPromptTokens,
		maxHistory: DefaultMaxHistoryMessages,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPromptStore sets the prompt store for customisable system prompts.
func (s *Synthesizer) SetPromptStore(store driven.PromptStore) {
	s.prompts = store
}

// Synthesize answers query from sources, which must be in rank order.
//
// Passages take priority over history: history is trimmed oldest first,
// then passages lowest rank first, until the prompt fits. With no
// sources, or when none of them fits, the model is asked for an
// ungrounded answer, which is prefixed with domain.UngroundedCaveat. Generation failures wrap
// domain.ErrGeneration.
func (s *Synthesizer) Synthesize(
	ctx context.Context, query string, history []domain.Message, sources []domain.Source,
) (*domain.Answer, error) {
	logger.Section("Synthesis")

	if s.llm == nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGeneration, domain.ErrLLMUnavailable)
	}

	var (
		system   string
		passages string
		used     int
		budget   int
	)
	if len(sources) > 0 {
		system = s.loadPrompt(driven.PromptAnswerSystem)
		budget = s.maxTokens - s.count(system) - s.count(query) - 3*messageOverhead
		passages, used = s.fitPassages(sources, budget)
		budget -= s.count(passages)
		if used == 0 {
			logger.Warn("No passage fits the prompt budget of %d tokens", s.maxTokens)
		}
	}
	grounded := used > 0
	if !grounded {
		system = s.loadPrompt(driven.PromptUngroundedSystem)
		budget = s.maxTokens - s.count(system) - s.count(query) - 3*messageOverhead
	}

	turns := s.fitHistory(history, budget)

	messages := make([]driven.ChatMessage, 0, len(turns)+2)
	messages = append(messages, driven.ChatMessage{Role: driven.ChatRoleSystem, Content: system})
	messages = append(messages, turns...)
	messages = append(messages, driven.ChatMessage{Role: driven.ChatRoleUser, Content: userPrompt(passages, query)})

	logger.Debug("Prompt: %d passages, %d history messages", used, len(turns))
	text, err := s.llm.Chat(ctx, messages, s.chatOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: %w: empty completion", domain.ErrGeneration, domain.ErrMalformedResponse)
	}

	if !grounded {
		return &domain.Answer{
			Text:       domain.UngroundedCaveat + "\n\n" + text,
			HasContext: false,
			Sources:    []domain.Source{},
			Citations:  []int{},
		}, nil
	}

	return &domain.Answer{
		Text:       text,
		HasContext: true,
		Sources:    sources[:used],
		Citations:  ParseCitations(text, used),
	}, nil
}

// fitPassages renders the highest-ranked passages that fit budget and
// returns how many were included.
func (s *Synthesizer) fitPassages(sources []domain.Source, budget int) (string, int) {
	var b strings.Builder
	used := 0
	for i, src := range sources {
		block := formatPassage(i+1, src)
		if s.count(b.String()+block) > budget {
			break
		}
		b.WriteString(block)
		used++
	}
	return b.String(), used
}

// fitHistory keeps the newest messages that fit budget, in order.
func (s *Synthesizer) fitHistory(history []domain.Message, budget int) []driven.ChatMessage {
	if len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}

	start := len(history)
	spent := 0
	for i := len(history) - 1; i >= 0; i-- {
		cost := s.count(history[i].Content) + messageOverhead
		if spent+cost > budget {
			break
		}
		spent += cost
		start = i
	}

	turns := make([]driven.ChatMessage, 0, len(history)-start)
	for _, msg := range history[start:] {
		role := driven.ChatRoleUser
		if msg.Role == domain.RoleAssistant {
			role = driven.ChatRoleAssistant
		}
		turns = append(turns, driven.ChatMessage{Role: role, Content: msg.Content})
	}
	return turns
}

func (s *Synthesizer) loadPrompt(name string) string {
	if s.prompts != nil {
		if p, err := s.prompts.Load(name); err == nil && p != "" {
			return p
		}
	}
	return driven.DefaultPrompts[name]
}

func (s *Synthesizer) count(text string) int {
	if text == "" {
		return 0
	}
	return s.counter.Count(text)
}

func formatPassage(n int, src domain.Source) string {
	title := src.DocumentTitle
	if title == "" {
		title = src.DocumentID
	}
	return fmt.Sprintf("[%d] %s\n%s\n\n", n, title, src.Content)
}

func userPrompt(passages, query string) string {
	if passages == "" {
		return "Question: " + query
	}
	return "Passages:\n\n" + passages + "Question: " + query
}

// ParseCitations extracts unique 1-based passage numbers from text in
// order of first appearance. Numbers outside 1..n are dropped.
func ParseCitations(text string, n int) []int {
	citations := []int{}
	seen := make(map[int]bool)
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.Split(m[1], ",") {
			idx, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || idx < 1 || idx > n || seen[idx] {
				continue
			}
			seen[idx] = true
			citations = append(citations, idx)
		}
	}
	return citations
}

// estimateCounter approximates tokens as a quarter of the rune count.
type estimateCounter struct{}

func (estimateCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
