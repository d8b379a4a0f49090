package ai

import (
	"context"
	"fmt"
	"strings"
)

// Feature selects which kind of proposal copy the rewriter produces.
type Feature string

const (
	FeatureItemDescription Feature = "item_description"
	FeatureQuoteIntro      Feature = "quote_intro"
	FeatureThankYouNote    Feature = "thank_you_note"
)

var systemPrompts = map[Feature]string{
	FeatureItemDescription: `You write customer-facing copy for sales proposals sent by small trade businesses.
Rewrite the provided line item description so it is clear, persuasive, and professional.
Keep it factual: never invent quantities, prices, warranties, or certifications.
Answer with the rewritten description only, no preamble and no quotation marks.
Keep it under 60 words.`,
	FeatureQuoteIntro: `You write customer-facing copy for sales proposals sent by small trade businesses.
Write a short introduction paragraph for the proposal described by the user.
Warm and professional, addressed to the customer, no placeholders.
Answer with the paragraph only. Keep it under 80 words.`,
	FeatureThankYouNote: `You write customer-facing copy for sales proposals sent by small trade businesses.
Write a brief thank-you note to close the proposal described by the user.
Answer with the note only. Keep it under 50 words.`,
}

// RewriteInput carries the source text plus whatever context the caller has.
type RewriteInput struct {
	Feature Feature
	Text    string
	Context string // free-form, e.g. item name, customer name, trade
}

// Rewriter produces proposal copy through a TextGenerator.
type Rewriter struct {
	gen TextGenerator
}

// NewRewriter wraps a TextGenerator. A nil generator means rewriting is
// unconfigured and Rewrite returns an error.
func NewRewriter(gen TextGenerator) *Rewriter {
	return &Rewriter{gen: gen}
}

// Configured reports whether a generator is available.
func (r *Rewriter) Configured() bool {
	return r != nil && r.gen != nil
}

// Rewrite generates copy for the requested feature.
func (r *Rewriter) Rewrite(ctx context.Context, in RewriteInput) (string, error) {
	if !r.Configured() {
		return "", fmt.Errorf("ai rewriting is not configured")
	}
	system, ok := systemPrompts[in.Feature]
	if !ok {
		return "", fmt.Errorf("unknown rewrite feature %q", in.Feature)
	}
	text := strings.TrimSpace(in.Text)
	context := strings.TrimSpace(in.Context)
	if text == "" && context == "" {
		return "", fmt.Errorf("nothing to rewrite")
	}

	var b strings.Builder
	if context != "" {
		fmt.Fprintf(&b, "Context: %s\n", context)
	}
	if text != "" {
		fmt.Fprintf(&b, "Current text: %s\n", text)
	} else {
		b.WriteString("Current text: (none, write from the context)\n")
	}

	out, err := r.gen.GenerateText(ctx, system, b.String())
	if err != nil {
		return "", fmt.Errorf("rewrite %s: %w", in.Feature, err)
	}
	return strings.Trim(strings.TrimSpace(out), `"`), nil
}

// EnhanceDescription rewrites a line item description. The item name and an
// optional trade give the model context.
func (r *Rewriter) EnhanceDescription(ctx context.Context, name, description, trade string) (string, error) {
	parts := make([]string, 0, 2)
	if name = strings.TrimSpace(name); name != "" {
		parts = append(parts, "item: "+name)
	}
	if trade = strings.TrimSpace(trade); trade != "" {
		parts = append(parts, "trade: "+trade)
	}
	return r.Rewrite(ctx, RewriteInput{
		Feature: FeatureItemDescription,
		Text:    description,
		Context: strings.Join(parts, ", "),
	})
}
