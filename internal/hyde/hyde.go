// Package hyde implements HyDE (Hypothetical Document Embeddings) query
// expansion. Short user questions embed poorly against longer knowledge-base
// passages; generating a hypothetical answer first and embedding it alongside
// the question moves the query vector closer to the document space.
package hyde

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// systemPrompt instructs the model to answer as if the knowledge base
// already contained the answer. Spanish to match the corpus language.
const systemPrompt = `Eres un experto en restaurantes y atención al cliente.
Genera una respuesta hipotética breve y factual (2-3 frases) a la pregunta del usuario,
como si la información existiera en la base de conocimiento de un restaurante.
No menciones el nombre del restaurante.
Responde únicamente con la respuesta hipotética, sin preámbulos.`

// DefaultTimeout bounds the generation round trip. Expansion sits on the
// retrieval hot path, so a stalled model must not hang the search.
const DefaultTimeout = 10 * time.Second

// Expander rewrites a search query by prepending a hypothetical answer.
type Expander struct {
	genkit  *genkit.Genkit
	model   ai.Model
	logger  *slog.Logger
	timeout time.Duration
}

// New creates an Expander backed by the given model.
// logger may be nil (defaults to slog.Default()).
func New(g *genkit.Genkit, model ai.Model, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{
		genkit:  g,
		model:   model,
		logger:  logger,
		timeout: DefaultTimeout,
	}
}

// Expand returns the hypothetical answer followed by a blank line and the
// original question. If the model produces no usable text the question is
// returned unchanged; generation errors are propagated so the caller can
// decide whether to fall back.
func (e *Expander) Expand(ctx context.Context, question string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := genkit.Generate(ctx, e.genkit,
		ai.WithModel(e.model),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(question),
	)
	if err != nil {
		return "", fmt.Errorf("generating hypothetical answer: %w", err)
	}

	hypothetical := strings.TrimSpace(resp.Text())
	if hypothetical == "" {
		e.logger.Debug("empty hypothetical answer, using question as-is")
		return question, nil
	}

	return hypothetical + "\n\n" + question, nil
}
