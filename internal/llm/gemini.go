package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	DefaultModel = "gemini-1.5-flash"

	generateTimeout = 60 * time.Second
)

// Gemini implements Provider using the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini provider. An empty model selects DefaultModel.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	httpClient := &http.Client{
		Transport: &apiKeyTransport{base: http.DefaultTransport, apiKey: apiKey},
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// apiKeyTransport adds the API key header. A custom http.Client bypasses the
// library's own key injection.
type apiKeyTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("x-goog-api-key") == "" && req.URL.Query().Get("key") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("x-goog-api-key", t.apiKey)
	}
	return t.base.RoundTrip(req)
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

// Model returns the default model name.
func (g *Gemini) Model() string {
	return g.model
}

func (g *Gemini) session(req Request) (*genai.ChatSession, []genai.Part, error) {
	if len(req.History) == 0 {
		return nil, nil, errors.New("gemini: empty history")
	}
	name := req.Model
	if name == "" {
		name = g.model
	}
	gm := g.client.GenerativeModel(name)
	if req.System != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	cs := gm.StartChat()
	last := len(req.History) - 1
	for _, m := range req.History[:last] {
		cs.History = append(cs.History, &genai.Content{
			Role:  m.Role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return cs, []genai.Part{genai.Text(req.History[last].Content)}, nil
}

func (g *Gemini) Stream(ctx context.Context, req Request) (Stream, error) {
	cs, parts, err := g.session(req)
	if err != nil {
		return nil, err
	}
	slog.Debug("gemini stream", "model", req.Model, "turns", len(req.History))
	return &geminiStream{iter: cs.SendMessageStream(ctx, parts...)}, nil
}

func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	cs, parts, err := g.session(req)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	resp, err := cs.SendMessage(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return responseText(resp), nil
}

func (g *Gemini) ListModels(ctx context.Context) ([]string, error) {
	iter := g.client.ListModels(ctx)
	var names []string
	for {
		m, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing gemini models: %w", err)
		}
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return names, nil
}

type geminiStream struct {
	iter *genai.GenerateContentResponseIterator
}

func (s *geminiStream) Next() (string, error) {
	for {
		resp, err := s.iter.Next()
		if err == iterator.Done {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("gemini stream: %w", err)
		}
		if text := responseText(resp); text != "" {
			return text, nil
		}
	}
}

func (s *geminiStream) Close() error { return nil }

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				sb.WriteString(string(txt))
			}
		}
	}
	return sb.String()
}
