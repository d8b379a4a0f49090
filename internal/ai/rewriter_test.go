package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeGenerator struct {
	lastSystem string
	lastUser   string
	reply      string
	err        error
}

func (f *fakeGenerator) GenerateText(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	return f.reply, f.err
}

func TestEnhanceDescriptionBuildsPrompt(t *testing.T) {
	gen := &fakeGenerator{reply: `"Premium cedar fencing, installed to last."`}
	r := NewRewriter(gen)

	out, err := r.EnhanceDescription(context.Background(), "Cedar fence", "6ft fence", "landscaping")
	if err != nil {
		t.Fatalf("EnhanceDescription: %v", err)
	}
	if out != "Premium cedar fencing, installed to last." {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(gen.lastUser, "trade: landscaping") {
		t.Errorf("prompt missing trade: %q", gen.lastUser)
	}
	if !strings.Contains(gen.lastUser, "item: Cedar fence") {
		t.Errorf("prompt missing item name: %q", gen.lastUser)
	}
	if !strings.Contains(gen.lastSystem, "line item description") {
		t.Errorf("unexpected system prompt: %q", gen.lastSystem)
	}
}

func TestRewriteFeatures(t *testing.T) {
	gen := &fakeGenerator{reply: "copy"}
	r := NewRewriter(gen)

	for _, feature := range []Feature{FeatureItemDescription, FeatureQuoteIntro, FeatureThankYouNote} {
		out, err := r.Rewrite(context.Background(), RewriteInput{Feature: feature, Text: "draft"})
		if err != nil {
			t.Fatalf("Rewrite(%s): %v", feature, err)
		}
		if out != "copy" {
			t.Fatalf("Rewrite(%s) = %q", feature, out)
		}
	}

	if _, err := r.Rewrite(context.Background(), RewriteInput{Feature: "haiku", Text: "draft"}); err == nil {
		t.Fatal("expected error for unknown feature")
	}
}

func TestEnhanceDescriptionRequiresInput(t *testing.T) {
	r := NewRewriter(&fakeGenerator{reply: "x"})
	if _, err := r.EnhanceDescription(context.Background(), "  ", "", ""); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestEnhanceDescriptionUnconfigured(t *testing.T) {
	var r *Rewriter
	if r.Configured() {
		t.Fatal("nil rewriter should not be configured")
	}
	r = NewRewriter(nil)
	if _, err := r.EnhanceDescription(context.Background(), "Item", "desc", ""); err == nil {
		t.Fatal("expected error when generator missing")
	}
}

func TestOpenAICompatGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req oaiChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("unexpected model %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  rewritten  "}},
			},
		})
	}))
	defer srv.Close()

	g := NewOpenAICompatGenerator(srv.URL+"/v1/", "test-key", "test-model")
	out, err := g.GenerateText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if out != "rewritten" {
		t.Fatalf("unexpected text %q", out)
	}
}

func TestOpenAICompatGeneratorAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limited", "type": "rate_limit"},
		})
	}))
	defer srv.Close()

	g := NewOpenAICompatGenerator(srv.URL, "", "test-model")
	if _, err := g.GenerateText(context.Background(), "", "user"); err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected api error, got %v", err)
	}
}
