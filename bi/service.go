package bi

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/biflow-io/biflow"
	"github.com/biflow-io/biflow/chart"
	"github.com/biflow-io/biflow/config"
	"github.com/biflow-io/biflow/llm"
	"github.com/biflow-io/biflow/schema"
	"github.com/biflow-io/biflow/sqlrun"
	"github.com/biflow-io/biflow/state"
)

// Answer is the presentable outcome of one question. SQL and Result are
// always set when the pipeline ran; Chart and Explanation may be missing
// when their stages degraded, with the stage names listed in Degraded.
type Answer struct {
	Question    string           `json:"question"`
	SQL         string           `json:"sql"`
	Result      *sqlrun.Envelope `json:"result"`
	Chart       *chart.Spec      `json:"chart,omitempty"`
	Explanation string           `json:"explanation,omitempty"`
	Degraded    []string         `json:"degraded,omitempty"`
	RunID       string           `json:"run_id"`
}

// Service wires the database, the model provider and the pipeline runner
// behind a single Ask call. Each request runs a fresh pipeline against a
// fresh state store; the formatted schema is introspected once and
// cached.
type Service struct {
	cfg        *config.Config
	logger     *zap.Logger
	db         *sql.DB
	ownsDB     bool
	generator  biflow.Generator
	executor   *sqlrun.Executor
	reader     *schema.Reader
	runner     *biflow.Runner
	runnerOpts []biflow.RunnerOption

	mu         sync.RWMutex
	schemaText string
}

// Option configures a Service beyond what the config file carries.
type Option func(*Service)

// WithGenerator overrides the provider selected by the configuration.
// Used by tests and demos to run against llm.Mock.
func WithGenerator(g biflow.Generator) Option {
	return func(s *Service) { s.generator = g }
}

// WithDB uses an already-open database instead of opening one from the
// configured DSN. The caller keeps ownership and closes it.
func WithDB(db *sql.DB) Option {
	return func(s *Service) { s.db = db }
}

// WithRunnerOptions appends options to the pipeline runner, typically
// metrics and tracing middleware.
func WithRunnerOptions(opts ...biflow.RunnerOption) Option {
	return func(s *Service) {
		s.runnerOpts = append(s.runnerOpts, opts...)
	}
}

// New builds a Service from configuration. The database connection is
// verified with a ping before the service is returned.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(s)
	}

	if s.db == nil {
		dsn, err := cfg.Database.DSN()
		if err != nil {
			return nil, err
		}
		db, err := sql.Open(cfg.Database.Driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		s.db = db
		s.ownsDB = true
	}
	if err := s.db.PingContext(ctx); err != nil {
		if s.ownsDB {
			s.db.Close()
		}
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	if s.generator == nil {
		gen, err := newGenerator(cfg.LLM)
		if err != nil {
			if s.ownsDB {
				s.db.Close()
			}
			return nil, err
		}
		s.generator = gen
	}

	s.executor = &sqlrun.Executor{
		DB:      s.db,
		MaxRows: cfg.Query.MaxRows,
		Timeout: cfg.Query.Timeout,
	}
	s.reader = &schema.Reader{
		DB:        s.db,
		Dialect:   cfg.Database.Driver,
		MaxTables: cfg.Schema.MaxTables,
	}

	retry := biflow.DefaultRetryPolicy()
	if cfg.LLM.MaxRetries > 0 {
		retry.MaxRetries = cfg.LLM.MaxRetries
	}
	runnerOpts := append([]biflow.RunnerOption{
		biflow.WithLogger(biflow.NewZapLogger(logger)),
		biflow.WithRetryPolicy(retry),
	}, s.runnerOpts...)
	s.runner = biflow.NewRunner(runnerOpts...)

	return s, nil
}

// newGenerator selects the model provider from configuration.
func newGenerator(cfg config.LLMConfig) (biflow.Generator, error) {
	switch cfg.Provider {
	case "anthropic":
		return llm.NewAnthropicGenerator(cfg.APIKey, cfg.Model, cfg.Timeout)
	case "google":
		return llm.NewGoogleGenerator(cfg.APIKey, cfg.Model, cfg.Timeout)
	case "openai":
		return llm.NewOpenAIGenerator(cfg.APIKey, cfg.Model, cfg.Timeout)
	case "mock":
		return llm.NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// Ask answers one natural-language question. The returned error covers
// pipeline failures (SQL generation, validation); query execution
// failures are reported inside Answer.Result instead.
func (s *Service) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}

	schemaText, err := s.SchemaText(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}

	pipeline, err := NewPipeline(PipelineOptions{
		Generator: s.generator,
		Executor:  s.executor,
		Dialect:   s.cfg.Database.Driver,
	})
	if err != nil {
		return nil, err
	}

	st := state.NewStore()
	if err := st.Put(KeyQuestion, question); err != nil {
		return nil, err
	}
	if err := st.Put(KeySchema, schemaText); err != nil {
		return nil, err
	}

	result, err := s.runner.Execute(ctx, pipeline, st)
	if err != nil {
		s.logger.Error("pipeline failed",
			zap.String("run_id", result.RunID),
			zap.String("stage", result.FailedStage),
			zap.Error(err))
		return nil, err
	}

	answer := &Answer{Question: question, RunID: result.RunID}

	answer.SQL, err = state.Get[string](st, KeySQL)
	if err != nil {
		return nil, fmt.Errorf("reading generated SQL: %w", err)
	}
	answer.Result, err = state.Get[*sqlrun.Envelope](st, KeyResults)
	if err != nil {
		return nil, fmt.Errorf("reading query results: %w", err)
	}

	if st.Has(KeyChart) {
		spec, err := state.Get[*chart.Spec](st, KeyChart)
		if err != nil {
			return nil, fmt.Errorf("reading chart spec: %w", err)
		}
		if bindErr := spec.Bind(answer.Result); bindErr != nil {
			s.logger.Warn("chart spec does not bind to results",
				zap.String("run_id", result.RunID), zap.Error(bindErr))
			answer.Degraded = append(answer.Degraded, StageVisualization)
		} else {
			answer.Chart = spec
		}
	} else if st.Has(biflow.ErrKeyPrefix + StageVisualization) {
		answer.Degraded = append(answer.Degraded, StageVisualization)
	}

	if st.Has(KeyExplanation) {
		answer.Explanation, err = state.Get[string](st, KeyExplanation)
		if err != nil {
			return nil, fmt.Errorf("reading explanation: %w", err)
		}
	} else if st.Has(biflow.ErrKeyPrefix + StageExplanation) {
		answer.Degraded = append(answer.Degraded, StageExplanation)
	}

	s.logger.Info("question answered",
		zap.String("run_id", result.RunID),
		zap.Bool("query_success", answer.Result.Success),
		zap.Int("rows", answer.Result.RowCount),
		zap.Strings("degraded", answer.Degraded),
		zap.Duration("took", result.ExecutionTime))
	return answer, nil
}

// SchemaText returns the formatted schema, introspecting and caching it
// on first use.
func (s *Service) SchemaText(ctx context.Context) (string, error) {
	s.mu.RLock()
	cached := s.schemaText
	s.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}
	return s.RefreshSchema(ctx)
}

// RefreshSchema re-introspects the catalog and replaces the cache.
func (s *Service) RefreshSchema(ctx context.Context) (string, error) {
	catalog, err := s.reader.Read(ctx)
	if err != nil {
		return "", err
	}
	text := catalog.Format()

	s.mu.Lock()
	s.schemaText = text
	s.mu.Unlock()
	return text, nil
}

// Ping verifies database connectivity.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close releases the database connection when the service opened it.
func (s *Service) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
