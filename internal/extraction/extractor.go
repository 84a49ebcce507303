// Package extraction turns stored document bytes into text. Image and PDF
// uploads go through a vision-capable model; plain text is read directly and
// HTML is stripped locally, with no model call for either.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/vivi-ai/backend/internal/ollama"
	"github.com/vivi-ai/backend/pkg/logger"
)

var ErrExtractionFailed = errors.New("content extraction failed")

const (
	MethodVision = "vision"
	MethodText   = "text"

	// analysisInputLimit caps how much extracted content is sent back to the
	// chat model for the secondary structured analysis.
	analysisInputLimit = 2000
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Gateway is the slice of the inference client the extractor needs.
type Gateway interface {
	AnalyzeDocument(ctx context.Context, model string, fileBytes []byte) (string, error)
	Chat(ctx context.Context, model string, messages []ollama.ChatMessage) (*ollama.ChatResult, error)
}

type Extractor struct {
	gateway     Gateway
	chatModel   string
	visionModel string
}

// Result is the transcription produced for a document.
type Result struct {
	Text          string
	Method        string
	ModelResponse string
}

// StructuredAnalysis is a tagged result: Fields is non-nil only when the
// model reply parsed as JSON; Raw always carries the reply text. Callers
// never have to guess from a failed parse.
type StructuredAnalysis struct {
	Fields map[string]interface{}
	Raw    string
}

func (a StructuredAnalysis) IsStructured() bool {
	return a.Fields != nil
}

func NewExtractor(gateway Gateway, chatModel, visionModel string) *Extractor {
	return &Extractor{
		gateway:     gateway,
		chatModel:   chatModel,
		visionModel: visionModel,
	}
}

// Extract produces the textual transcription for the given bytes. The file
// type decides the pipeline: images and PDFs use the vision model, text types
// bypass the model entirely, and any other accepted type is attempted
// through the vision pipeline best-effort.
func (e *Extractor) Extract(ctx context.Context, data []byte, fileType string) (*Result, error) {
	switch {
	case fileType == "text/plain":
		return &Result{Text: string(data), Method: MethodText}, nil

	case fileType == "text/html":
		text, err := stripHTML(string(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		return &Result{Text: text, Method: MethodText}, nil

	default:
		response, err := e.gateway.AnalyzeDocument(ctx, e.visionModel, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		return &Result{Text: response, Method: MethodVision, ModelResponse: response}, nil
	}
}

// Analyze asks the chat model for a structured JSON summary of the extracted
// content. It is best-effort: an unparseable reply is returned as raw text
// and a failed call yields an empty analysis, never an error.
func (e *Extractor) Analyze(ctx context.Context, content string) StructuredAnalysis {
	if len(content) > analysisInputLimit {
		content = content[:analysisInputLimit]
	}

	prompt := fmt.Sprintf(`Analyze the following document content and extract structured information in JSON format.
Include: title, summary, key_points, entities (people, organizations, dates), topics, and any important numbers or statistics.

Content: %s...

Return only valid JSON:`, content)

	result, err := e.gateway.Chat(ctx, e.chatModel, []ollama.ChatMessage{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		logger.Warn("Structured analysis unavailable", zap.Error(err))
		return StructuredAnalysis{}
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(result.Content), &fields); err != nil {
		return StructuredAnalysis{Raw: result.Content}
	}

	return StructuredAnalysis{Fields: fields, Raw: result.Content}
}

func stripHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	text = whitespaceRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text), nil
}
