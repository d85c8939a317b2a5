// Package openai provides text-generation backends over the OpenAI chat
// completion API and compatible local servers.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/cache"
	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/ingest"
	"github.com/garyjia/ledger-backoffice/internal/textgen"
)

const (
	defaultProbeTTL   = 30 * time.Second
	maxPromptEntries  = 20
	probeCacheKey     = "available"
	defaultModel      = openai.GPT4oMini
	defaultLocalModel = "llama3"
)

// Config configures one chat-completion backend.
type Config struct {
	// Name is the provider name reported in provenance, "openai" or "local"
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	Currency    string
	Temperature float32
	// Probe checks reachability by listing models instead of trusting the key
	Probe    bool
	ProbeTTL time.Duration
}

// Provider implements textgen.Provider on a chat-completion endpoint
type Provider struct {
	client  *openai.Client
	cfg     Config
	prompts *PromptConfig
	probes  *cache.Memory[bool]
	logger  *zap.Logger
}

// NewProvider creates a provider. A nil prompts uses DefaultPrompts.
func NewProvider(cfg Config, prompts *PromptConfig, logger *zap.Logger) *Provider {
	if cfg.Name == "" {
		cfg.Name = textgen.ProviderOpenAI
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
		if cfg.Name == textgen.ProviderLocal {
			cfg.Model = defaultLocalModel
		}
	}
	if cfg.ProbeTTL <= 0 {
		cfg.ProbeTTL = defaultProbeTTL
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:  openai.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		prompts: prompts,
		probes:  cache.NewMemory[bool](cache.Options{Name: cfg.Name + "-probe", TTL: cfg.ProbeTTL}),
		logger:  logger.With(zap.String("provider", cfg.Name)),
	}
}

func (p *Provider) Name() string { return p.cfg.Name }

// IsAvailable is true for a configured hosted backend. Probed backends are
// asked for their model list, and the answer is cached for ProbeTTL.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	if !p.cfg.Probe {
		return p.cfg.APIKey != ""
	}
	if p.cfg.BaseURL == "" && p.cfg.APIKey == "" {
		return false
	}
	if ok, found := p.probes.Get(ctx, probeCacheKey); found {
		return ok
	}

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := p.client.ListModels(probeCtx)
	available := err == nil
	if !available {
		p.logger.Debug("Provider probe failed", zap.Error(err))
	}
	_ = p.probes.Set(ctx, probeCacheKey, available, 0)
	return available
}

// Close stops the probe cache
func (p *Provider) Close() {
	p.probes.Destroy()
}

type messageData struct {
	Type              string
	CounterpartyLabel string
	Counterparty      string
	AccountNumber     string
	Date              string
	Amount            string
	Description       string
	Reference         string
}

func (p *Provider) GenerateJustificationMessage(ctx context.Context, mc textgen.MessageContext) (string, error) {
	section := p.prompts.JustificationMessage
	data := messageData{
		Type:              mc.Type,
		CounterpartyLabel: counterpartyLabel(mc.Variant),
		Counterparty:      mc.CounterpartyName,
		AccountNumber:     mc.AccountNumber,
		Date:              formatDate(mc.Date),
		Amount:            p.formatAmount(mc.Amount),
		Description:       mc.Description,
		Reference:         mc.Reference,
	}
	prompt, err := renderTemplate(section.UserTemplate, data)
	if err != nil {
		return "", textgen.NewProviderError(p.cfg.Name, err)
	}

	content, err := p.complete(ctx, section, prompt, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

type analysisResult struct {
	SuspiciousLevel string   `json:"suspicious_level"`
	Reasons         []string `json:"reasons"`
	Suggestions     []string `json:"suggestions"`
}

func (p *Provider) AnalyzeDescription(ctx context.Context, text string, amount decimal.Decimal) (entity.AIMeta, error) {
	section := p.prompts.DescriptionAnalysis
	prompt, err := renderTemplate(section.UserTemplate, struct {
		Text   string
		Amount string
	}{Text: text, Amount: p.formatAmount(amount)})
	if err != nil {
		return entity.AIMeta{}, textgen.NewProviderError(p.cfg.Name, err)
	}

	content, err := p.complete(ctx, section, prompt, true)
	if err != nil {
		return entity.AIMeta{}, err
	}

	var result analysisResult
	if err := p.decode(content, &result); err != nil {
		return entity.AIMeta{}, err
	}

	p.logger.Debug("Description analysed", zap.String("level", result.SuspiciousLevel))
	return entity.AIMeta{
		SuspiciousLevel: entity.NormalizeSuspiciousLevel(result.SuspiciousLevel),
		Reasons:         result.Reasons,
		Suggestions:     result.Suggestions,
		Provider:        p.cfg.Name,
	}, nil
}

type suggestionLine struct {
	Date         string
	Counterparty string
	Description  string
	Amount       string
}

func (p *Provider) GenerateSuggestions(ctx context.Context, entries []entity.LedgerEntry) ([]string, error) {
	section := p.prompts.Suggestions
	lines := make([]suggestionLine, 0, min(len(entries), maxPromptEntries))
	for i := range entries {
		if i == maxPromptEntries {
			break
		}
		e := &entries[i]
		lines = append(lines, suggestionLine{
			Date:         e.DateString(),
			Counterparty: e.CounterpartyName,
			Description:  e.Description,
			Amount:       p.formatAmount(e.Amount()),
		})
	}
	prompt, err := renderTemplate(section.UserTemplate, struct {
		Count   int
		Entries []suggestionLine
	}{Count: len(entries), Entries: lines})
	if err != nil {
		return nil, textgen.NewProviderError(p.cfg.Name, err)
	}

	content, err := p.complete(ctx, section, prompt, true)
	if err != nil {
		return nil, err
	}

	var result struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := p.decode(content, &result); err != nil {
		return nil, err
	}
	if len(result.Suggestions) == 0 {
		return nil, textgen.NewProviderError(p.cfg.Name, textgen.ErrEmptyResponse)
	}
	return result.Suggestions, nil
}

// complete sends one system and one user message and returns the first choice.
func (p *Provider) complete(ctx context.Context, section PromptSection, prompt string, jsonMode bool) (string, error) {
	temperature := section.Temperature
	if p.cfg.Temperature > 0 {
		temperature = p.cfg.Temperature
	}
	req := openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		Temperature: temperature,
		MaxTokens:   section.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: section.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		p.logger.Warn("Chat completion failed", zap.Error(err))
		return "", textgen.NewProviderError(p.cfg.Name, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", textgen.NewProviderError(p.cfg.Name, textgen.ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// decode parses content, falling back to the first JSON object embedded in
// surrounding prose or a markdown fence.
func (p *Provider) decode(content string, out any) error {
	err := json.Unmarshal([]byte(content), out)
	if err == nil {
		return nil
	}
	if jsonStr := extractJSON(content); jsonStr != "" {
		if err2 := json.Unmarshal([]byte(jsonStr), out); err2 == nil {
			p.logger.Debug("Extracted JSON from response")
			return nil
		}
	}
	p.logger.Warn("Failed to parse model response", zap.Error(err), zap.String("content", content))
	return &textgen.ProviderError{
		Provider: p.cfg.Name,
		Kind:     textgen.KindInvalid,
		Err:      fmt.Errorf("failed to parse response: %w", err),
	}
}

func (p *Provider) formatAmount(d decimal.Decimal) string {
	s := ingest.FormatAmount(d, ingest.NotationFrench)
	if p.cfg.Currency != "" {
		s += " " + p.cfg.Currency
	}
	return s
}

func counterpartyLabel(v entity.Variant) string {
	switch v {
	case entity.VariantClient:
		return "Client"
	case entity.VariantSupplier:
		return "Fournisseur"
	}
	return "Compte"
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "non renseignée"
	}
	return t.Format("02/01/2006")
}

var _ textgen.Provider = (*Provider)(nil)
