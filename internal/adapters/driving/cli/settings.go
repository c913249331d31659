package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/kb/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure AI providers, retrieval defaults and storage backends.

Settings are read from ~/.kb/config.toml, then a .env file, then KB_*
environment variables. 'kb settings set' writes to the config file.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Persist a single setting",
	Long: `Persist a dotted key such as retrieval.top_k or storage.vector_backend.
The value is parsed for the key's type before it is written.`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check settings and ping the configured providers",
	RunE:  runSettingsValidate,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Configure embedding provider",
	Long:  `Interactively select the embedding provider used for indexing and retrieval.`,
	RunE:  runSettingsEmbedding,
}

var settingsLLMCmd = &cobra.Command{
	Use:   "llm",
	Short: "Configure LLM provider",
	Long:  `Interactively select the LLM provider used to generate answers.`,
	RunE:  runSettingsLLM,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsValidateCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	settingsCmd.AddCommand(settingsLLMCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Embedding]")
	cmd.Printf("  Provider:   %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Model:      %s\n", settings.Embedding.Model)
	cmd.Printf("  Dimensions: %d\n", settings.Embedding.Dimensions)
	printEndpoint(cmd, settings.Embedding.Provider, settings.Embedding.BaseURL, settings.Embedding.APIKey)
	cmd.Printf("  Status:     %s\n", configuredStatus(settings.Embedding.IsConfigured()))
	cmd.Println()

	cmd.Println("[LLM]")
	cmd.Printf("  Provider:   %s\n", settings.LLM.Provider.Description())
	cmd.Printf("  Model:      %s\n", settings.LLM.Model)
	printEndpoint(cmd, settings.LLM.Provider, settings.LLM.BaseURL, settings.LLM.APIKey)
	cmd.Printf("  Status:     %s\n", configuredStatus(settings.LLM.IsConfigured()))
	cmd.Println()

	cmd.Println("[Retrieval]")
	cmd.Printf("  Top K:      %d\n", settings.Retrieval.TopK)
	cmd.Printf("  Threshold:  %.2f\n", settings.Retrieval.ScoreThreshold)
	reranker := settings.Rerank.Provider
	if reranker == "" {
		reranker = "none"
	}
	cmd.Printf("  Reranker:   %s (x%d candidates)\n", reranker, settings.Rerank.Factor)
	cmd.Println()

	cmd.Println("[Chunking]")
	cmd.Printf("  Size:       %d runes\n", settings.Chunking.Size)
	cmd.Printf("  Overlap:    %d runes\n", settings.Chunking.Overlap)
	cmd.Println()

	cmd.Println("[Storage]")
	cmd.Printf("  Documents:     %s\n", settings.Storage.Backend)
	cmd.Printf("  Vectors:       %s\n", settings.Storage.VectorBackend)
	cmd.Printf("  Conversations: %s\n", settings.Storage.ConversationBackend)
	if settings.Storage.Path != "" {
		cmd.Printf("  Path:          %s\n", settings.Storage.Path)
	}
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'kb settings embedding' or 'kb settings llm' to fix provider configuration.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}

	if err := settingsService.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}
	cmd.Printf("%s updated\n", args[0])
	return nil
}

func runSettingsValidate(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}

	if err := settingsService.Validate(); err != nil {
		return err
	}

	cmd.Print("Embedding provider... ")
	if err := settingsService.ValidateEmbeddingConfig(); err != nil {
		cmd.Println("FAILED")
		return fmt.Errorf("embedding configuration: %w", err)
	}
	cmd.Println("OK")

	cmd.Print("LLM provider... ")
	if err := settingsService.ValidateLLMConfig(); err != nil {
		cmd.Println("FAILED")
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Questions will be answered with retrieved passages only.")
		return nil
	}
	cmd.Println("OK")
	return nil
}

func runSettingsEmbedding(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}
	return configureProvider(cmd, bufio.NewReader(cmd.InOrStdin()), embeddingWizard)
}

func runSettingsLLM(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}
	return configureProvider(cmd, bufio.NewReader(cmd.InOrStdin()), llmWizard)
}

// providerWizard describes one interactive provider selection.
type providerWizard struct {
	section   string
	label     string
	providers []domain.AIProvider
	models    map[domain.AIProvider]string
	validate  func() error
}

var embeddingWizard = providerWizard{
	section:   "embedding",
	label:     "Embedding",
	providers: []domain.AIProvider{domain.AIProviderHashing, domain.AIProviderOllama, domain.AIProviderOpenAI},
	models:    domain.DefaultEmbeddingModels(),
	validate:  func() error { return settingsService.ValidateEmbeddingConfig() },
}

var llmWizard = providerWizard{
	section:   "llm",
	label:     "LLM",
	providers: []domain.AIProvider{domain.AIProviderOllama, domain.AIProviderOpenAI, domain.AIProviderAnthropic},
	models:    domain.DefaultLLMModels(),
	validate:  func() error { return settingsService.ValidateLLMConfig() },
}

func configureProvider(cmd *cobra.Command, reader *bufio.Reader, w providerWizard) error {
	cmd.Printf("Select %s Provider\n", w.label)
	for i, p := range w.providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(w.providers), 1)
	provider := w.providers[idx-1]

	values := [][2]string{{w.section + ".provider", provider.String()}}

	defaultModel := w.models[provider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}
	values = append(values, [2]string{w.section + ".model", model})

	if provider == domain.AIProviderOllama || provider == domain.AIProviderOpenAI {
		cmd.Print("Enter base URL [provider default]: ")
		if baseURL := readLine(reader); baseURL != "" {
			values = append(values, [2]string{w.section + ".base_url", baseURL})
		}
	}

	if provider.RequiresAPIKey() {
		cmd.Print("Enter API key: ")
		apiKey := readPassword(cmd.InOrStdin(), reader)
		cmd.Println()
		if apiKey == "" {
			return errors.New("API key is required for this provider")
		}
		values = append(values, [2]string{w.section + ".api_key", apiKey})
	}

	for _, kv := range values {
		if err := settingsService.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to configure %s provider: %w", w.section, err)
		}
	}

	cmd.Print("Validating configuration... ")
	if err := w.validate(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("%s configuration validation failed: %w", w.section, err)
	}
	cmd.Println("OK")

	cmd.Printf("%s provider configured: %s (%s)\n", w.label, provider.Description(), model)
	return nil
}

func printEndpoint(cmd *cobra.Command, provider domain.AIProvider, baseURL, apiKey string) {
	if baseURL != "" {
		cmd.Printf("  Base URL:   %s\n", baseURL)
	}
	if !provider.RequiresAPIKey() {
		return
	}
	if apiKey != "" {
		cmd.Printf("  API Key:    %s\n", maskAPIKey(apiKey))
	} else {
		cmd.Printf("  API Key:    (not set)\n")
	}
}

func configuredStatus(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo from a terminal and falls back to a plain line.
func readPassword(in io.Reader, reader *bufio.Reader) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
