// Package normalize turns raw back-office content (spreadsheet exports,
// pasted documents) into structured knowledge-base chunks: an LLM splits
// and rewrites the text, and file parsers flatten spreadsheets into text
// the LLM can work with. Personal data is anonymized before any of it
// leaves the process.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// maxInputChars caps the raw text handed to the model per call.
const maxInputChars = 12000

// normalizeTimeout bounds the generation round trip; chunking a large
// document is slow but must not hang forever.
const normalizeTimeout = 60 * time.Second

// systemPrompt defines the chunking contract: max ~400-token chunks,
// Spanish prose, a fixed category vocabulary, JSON-array-only output.
const systemPrompt = `Eres un experto en gestión de bases de conocimiento para restaurantes.
Tu tarea es analizar texto en bruto (de Excel, PDF, documentos internos) y convertirlo en entradas
estructuradas para un sistema RAG de atención al cliente.

Reglas:
1. Divide el contenido en chunks de máximo 400 tokens cada uno
2. Cada chunk debe tener un título claro y descriptivo
3. Identifica la sección temática de cada chunk
4. Sugiere una categoría: "espacios", "alergenos", "accesibilidad", "horarios", "menus", "politicas", "general"
5. El contenido debe ser fluido y estar bien redactado en español
6. Elimina duplicados y consolida información redundante
7. Estima los tokens del contenido (1 token ≈ 4 caracteres)

Responde ÚNICAMENTE con un array JSON válido con este formato exacto:
[
  {
    "title": "Título descriptivo del chunk",
    "section": "Sección del documento",
    "content": "Contenido bien redactado del chunk",
    "categorySuggestion": "espacios|alergenos|accesibilidad|horarios|menus|politicas|general",
    "tokenCount": 150
  }
]`

// jsonArrayRE extracts the outermost JSON array from a model response
// that may be wrapped in prose or a fenced code block.
var jsonArrayRE = regexp.MustCompile(`(?s)\[.*\]`)

// Chunk is one normalized knowledge-base candidate.
type Chunk struct {
	Title              string `json:"title"`
	Section            string `json:"section"`
	Content            string `json:"content"`
	CategorySuggestion string `json:"categorySuggestion"`
	TokenCount         int    `json:"tokenCount"`
}

// Normalizer chunks raw text through an LLM.
type Normalizer struct {
	genkit *genkit.Genkit
	model  ai.Model
	logger *slog.Logger
}

// New creates a Normalizer backed by the given model.
// logger may be nil (defaults to slog.Default()).
func New(g *genkit.Genkit, model ai.Model, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{genkit: g, model: model, logger: logger}
}

// Normalize splits raw text into structured chunks. Input beyond the
// character budget is truncated before the call.
func (n *Normalizer) Normalize(ctx context.Context, text string) ([]Chunk, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	if len(text) > maxInputChars {
		runes := []rune(text)
		if len(runes) > maxInputChars {
			text = string(runes[:maxInputChars])
		}
	}

	ctx, cancel := context.WithTimeout(ctx, normalizeTimeout)
	defer cancel()

	resp, err := genkit.Generate(ctx, n.genkit,
		ai.WithModel(n.model),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt("Normaliza el siguiente contenido para la base de conocimiento del restaurante:\n\n"+text),
	)
	if err != nil {
		return nil, fmt.Errorf("normalizing content: %w", err)
	}

	chunks, err := parseChunks(resp.Text())
	if err != nil {
		return nil, err
	}

	n.logger.Debug("normalized content", "input_chars", len(text), "chunks", len(chunks))
	return chunks, nil
}

// parseChunks extracts and decodes the JSON array from a model response.
// Chunks without title or content are dropped rather than failing the
// whole response.
func parseChunks(raw string) ([]Chunk, error) {
	match := jsonArrayRE.FindString(raw)
	if match == "" {
		return nil, fmt.Errorf("no JSON array in model response")
	}

	var chunks []Chunk
	if err := json.Unmarshal([]byte(match), &chunks); err != nil {
		return nil, fmt.Errorf("decoding chunks: %w", err)
	}

	valid := chunks[:0]
	for _, c := range chunks {
		if c.Title == "" || c.Content == "" {
			continue
		}
		valid = append(valid, c)
	}
	return valid, nil
}
