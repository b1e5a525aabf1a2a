// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"time"

	"insight-agent/internal/cache"
	"insight-agent/internal/chart"
	"insight-agent/internal/common/config"
	"insight-agent/internal/common/logger"
	"insight-agent/internal/common/metrics"
	"insight-agent/internal/llm"
	"insight-agent/internal/models"
	"insight-agent/internal/prompt"
	"insight-agent/internal/warehouse"
)

// ContextRetriever supplies ranked metadata context for a question.
type ContextRetriever interface {
	Retrieve(ctx context.Context, question string, topK int) []models.ContextItem
}

// SQLExecutor runs generated SQL and returns a portable result.
type SQLExecutor interface {
	Execute(ctx context.Context, sqlText string) (*models.QueryResult, error)
}

// Service runs a question through the full pipeline: retrieve context,
// assemble the prompt, call the model, parse its reply, execute generated
// SQL, attach a chart recommendation, and memoize the answer. The cache
// wraps the whole computation so that concurrent identical questions cost
// one model call.
type Service struct {
	retriever ContextRetriever
	assembler *prompt.Assembler
	generator llm.Generator
	executor  SQLExecutor
	advisor   *chart.Advisor
	cache     *cache.AnswerCache
	cfg       config.RetrievalConfig
	logger    logger.Logger
}

func NewService(
	retriever ContextRetriever,
	assembler *prompt.Assembler,
	generator llm.Generator,
	executor SQLExecutor,
	advisor *chart.Advisor,
	answerCache *cache.AnswerCache,
	cfg config.RetrievalConfig,
	log logger.Logger,
) *Service {
	return &Service{
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		executor:  executor,
		advisor:   advisor,
		cache:     answerCache,
		cfg:       cfg,
		logger:    log.WithFields(map[string]interface{}{"component": "pipeline"}),
	}
}

// Answer resolves a question to a FinalAnswer, from cache when possible.
// The bool reports whether the answer was served from cache. Model
// unavailability is the only error surfaced to callers; query failures
// degrade into the answer itself.
func (s *Service) Answer(ctx context.Context, question string) (*models.FinalAnswer, bool, error) {
	start := time.Now()

	answer, cached, err := s.cache.GetOrCompute(ctx, question, func(ctx context.Context) (*models.FinalAnswer, error) {
		return s.compute(ctx, question)
	})
	if err != nil {
		metrics.QuestionsServed.WithLabelValues("error").Inc()
		return nil, false, err
	}

	label := "false"
	if cached {
		label = "true"
	}
	metrics.PipelineDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	metrics.QuestionsServed.WithLabelValues("ok").Inc()
	return answer, cached, nil
}

func (s *Service) compute(ctx context.Context, question string) (*models.FinalAnswer, error) {
	items := s.retriever.Retrieve(ctx, question, s.cfg.TopK)
	p := s.assembler.Assemble(question, items)

	raw, err := s.generator.Generate(ctx, p.SystemInstructions, prompt.Render(p))
	if err != nil {
		return nil, err
	}

	structured := llm.Interpret(raw)

	answer := &models.FinalAnswer{
		Question:  question,
		Insight:   structured.Insight,
		SQL:       structured.SQL,
		ChartType: structured.ChartType,
		Context:   p.ContextItems,
		CreatedAt: time.Now().UTC(),
	}

	if structured.SQL == "" {
		return answer, nil
	}

	result, err := s.executor.Execute(ctx, structured.SQL)
	if err != nil {
		// A bad generated query is still a useful answer: the insight and
		// the SQL text survive, the tabular result does not.
		s.logger.WithError(err).Warn("generated SQL failed", map[string]interface{}{
			"question": question,
		})
		answer.QueryError = err.Error()
		return answer, nil
	}

	answer.Result = result
	answer.Summary = warehouse.Summarize(result)
	answer.Chart = s.advisor.Advise(result, structured.ChartType)
	if answer.Chart != nil {
		answer.ChartType = answer.Chart.ChartType
	}
	return answer, nil
}

// Invalidate drops every cached answer, forcing fresh computations.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.InvalidateAll(ctx)
}
