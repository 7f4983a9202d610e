package assist

import (
	"context"
	"strings"
	"text/template"
)

const jsonInstruction = "Answer with a single JSON object and nothing else."

// SuggestInput feeds the line-item suggestion flow.
type SuggestInput struct {
	PreviousEntries []string `json:"previousEntries"`
	CurrentInput    string   `json:"currentInput"`
}

// SuggestOutput is the answer of the suggestion flow.
type SuggestOutput struct {
	Suggestions []string `json:"suggestions"`
}

type CategorizeInput struct {
	Description string `json:"description"`
}

type CategorizeOutput struct {
	Category string `json:"category"`
}

type EnhanceInput struct {
	Description string `json:"description"`
}

type EnhanceOutput struct {
	EnhancedDescription string `json:"enhancedDescription"`
}

// SupportInput carries the user's question and, optionally, a plain-text
// summary of the invoice the question is about.
type SupportInput struct {
	Query   string `json:"query"`
	Invoice string `json:"invoice,omitempty"`
}

type SupportOutput struct {
	Response string `json:"response"`
}

var (
	SuggestLineItemDescription = Flow{
		Name:   "suggestLineItemDescription",
		System: "You are an AI assistant helping users create invoices. " + jsonInstruction,
		Prompt: template.Must(template.New("suggest").Parse(
			`Based on the user's current input and the list of previous entries, suggest relevant line item descriptions.
Return at most five suggestions in the "suggestions" array.
{{if .PreviousEntries}}
Previous entries:
{{range .PreviousEntries}}- {{.}}
{{end}}{{end}}
Current input: {{.CurrentInput}}`)),
	}

	CategorizeLineItem = Flow{
		Name:   "categorizeLineItem",
		System: "You are an expert accountant. " + jsonInstruction,
		Prompt: template.Must(template.New("categorize").Parse(
			`Based on the following invoice line item description, provide a single, concise category for it in the "category" field.

Description: {{.Description}}`)),
	}

	EnhanceLineItemDescription = Flow{
		Name:   "enhanceLineItemDescription",
		System: "You are an expert copywriter specializing in creating professional invoice descriptions. " + jsonInstruction,
		Prompt: template.Must(template.New("enhance").Parse(
			`Enhance the following line item description to be more clear, professional and detailed.
Return only the single enhanced description in the "enhancedDescription" field. Do not add any preamble.

Original description:
"{{.Description}}"`)),
	}

	SupportAssistant = Flow{
		Name: "supportAssistant",
		System: `You are a friendly and helpful support assistant for the Codelits Studio Invoice Manager application.
Your goal is to help users understand how to use the application. Be concise and clear in your answers.

Features of the application:
- Dashboard: lists all invoices and has a reports tab with financial summaries.
- Create Invoice: a form to create invoices for clients, add line items and set taxes (VAT, TDS).
- Invite Officer: admin-only, sends email invitations to new financial officers.
- Clients & Projects: manages the list of client contacts.
- Settings: company profile (name, address, PAN, logo) and default tax rates for new invoices.
- Authentication: two roles, Admin and Financial Officer. Admins can invite officers. Every sign-in requires a 2FA email code.
` + jsonInstruction + ` Put your answer in the "response" field.`,
		Prompt: template.Must(template.New("support").Parse(
			`{{if .Invoice}}The question refers to this invoice:
{{.Invoice}}

{{end}}User's question:
"{{.Query}}"`)),
	}
)

// Suggest runs the suggestion flow and drops blank or duplicate answers.
func Suggest(ctx context.Context, r Runner, in SuggestInput) ([]string, error) {
	var out SuggestOutput
	if err := r.Run(ctx, SuggestLineItemDescription, in, &out); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(out.Suggestions))
	list := make([]string, 0, len(out.Suggestions))
	for _, s := range out.Suggestions {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		list = append(list, s)
	}
	return list, nil
}

func Categorize(ctx context.Context, r Runner, description string) (string, error) {
	var out CategorizeOutput
	if err := r.Run(ctx, CategorizeLineItem, CategorizeInput{Description: description}, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Category), nil
}

func Enhance(ctx context.Context, r Runner, description string) (string, error) {
	var out EnhanceOutput
	if err := r.Run(ctx, EnhanceLineItemDescription, EnhanceInput{Description: description}, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.EnhancedDescription), nil
}

func Support(ctx context.Context, r Runner, in SupportInput) (string, error) {
	var out SupportOutput
	if err := r.Run(ctx, SupportAssistant, in, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}
