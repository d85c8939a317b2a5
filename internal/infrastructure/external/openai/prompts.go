package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptSection is one prompt with its model parameters.
type PromptSection struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	System       string  `yaml:"system"`
	UserTemplate string  `yaml:"user_template"`
}

// PromptConfig holds the prompts used by the chat-completion providers
type PromptConfig struct {
	JustificationMessage PromptSection `yaml:"justification_message"`
	DescriptionAnalysis  PromptSection `yaml:"description_analysis"`
	Suggestions          PromptSection `yaml:"suggestions"`
}

// LoadPrompts loads prompt configuration from YAML file. Sections missing
// from the file keep their defaults.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	prompts := DefaultPrompts()
	if err := yaml.Unmarshal(data, prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	return prompts, nil
}

// DefaultPrompts returns the built-in French prompts
func DefaultPrompts() *PromptConfig {
	return &PromptConfig{
		JustificationMessage: PromptSection{
			Temperature: 0.4,
			MaxTokens:   400,
			System: "Tu es l'assistant d'un cabinet d'expertise comptable. Tu rédiges des messages courts, " +
				"courtois et précis pour demander un justificatif à un client. Réponds uniquement avec le texte du message.",
			UserTemplate: `Rédige un message demandant {{if eq .Type "invoice"}}la facture{{else}}le justificatif de paiement{{end}} pour l'écriture suivante :
- {{.CounterpartyLabel}} : {{.Counterparty}}{{if .AccountNumber}} (compte {{.AccountNumber}}){{end}}
- Date : {{.Date}}
- Montant : {{.Amount}}
- Libellé : {{.Description}}{{if .Reference}}
- Référence : {{.Reference}}{{end}}`,
		},
		DescriptionAnalysis: PromptSection{
			Temperature: 0.1,
			MaxTokens:   300,
			System: "Tu es un auditeur comptable. Tu évalues si le libellé d'une écriture est suspect. " +
				`Réponds uniquement en JSON : {"suspicious_level": "low|medium|high", "reasons": [string], "suggestions": [string]}.`,
			UserTemplate: `Libellé : {{.Text}}
Montant : {{.Amount}}`,
		},
		Suggestions: PromptSection{
			Temperature: 0.3,
			MaxTokens:   500,
			System: "Tu es un expert-comptable. À partir d'écritures non rapprochées, propose des actions concrètes. " +
				`Réponds uniquement en JSON : {"suggestions": [string]}.`,
			UserTemplate: `{{.Count}} écritures à traiter, dont :
{{range .Entries}}- {{.Date}} | {{.Counterparty}} | {{.Description}} | {{.Amount}}
{{end}}`,
		},
	}
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
