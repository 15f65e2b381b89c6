package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/guardrail"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/ports"
)

type State int

const (
	StateStart State = iota
	StateGuardrailInput
	StateRAGSearch
	StateAgentDecision
	StateWebSearch
	StateRespond
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateGuardrailInput:
		return "guardrail_input"
	case StateRAGSearch:
		return "rag_search"
	case StateAgentDecision:
		return "agent_decision"
	case StateWebSearch:
		return "web_search"
	case StateRespond:
		return "respond"
	case StateEnd:
		return "end"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// maxSteps is the longest legal path START..END plus one.
const maxSteps = 8

var errNoTransition = errors.New("no transition")

// AgentState accumulates per-request results as the router moves between
// states. Each field is written by exactly one state.
type AgentState struct {
	Query       string
	History     []domain.ChatMessage
	DocumentIDs []string
	Config      domain.RetrievalConfig

	InputVerdict domain.GuardrailVerdict

	RetrievedContext string
	Citations        []domain.Citation
	Images           []string
	HasResults       bool

	UseWebSearch   bool
	WebQuery       string
	DirectResponse string

	WebContext string
	WebSources []domain.WebSource

	Mode          domain.ResponseMode
	Response      string
	OutputVerdict *domain.GuardrailVerdict
}

func newAgentState(req domain.AgentRequest, defaults domain.RetrievalConfig) *AgentState {
	return &AgentState{
		Query:       guardrail.Sanitize(req.Query),
		History:     req.ChatHistory,
		DocumentIDs: req.DocumentIDs,
		Config:      defaults.Merge(req.Config).Normalize(),
		Citations:   []domain.Citation{},
		WebSources:  []domain.WebSource{},
	}
}

// Next is the transition function. It reads the state but never mutates it.
func Next(current State, st *AgentState, variant domain.AgentVariant) (State, error) {
	switch current {
	case StateStart:
		return StateGuardrailInput, nil
	case StateGuardrailInput:
		if st.InputVerdict.Blocked() {
			return StateEnd, nil
		}
		return StateRAGSearch, nil
	case StateRAGSearch:
		if st.HasResults || variant == domain.VariantDocumentOnly {
			return StateRespond, nil
		}
		return StateAgentDecision, nil
	case StateAgentDecision:
		if st.UseWebSearch {
			return StateWebSearch, nil
		}
		return StateRespond, nil
	case StateWebSearch:
		return StateRespond, nil
	case StateRespond:
		return StateEnd, nil
	default:
		return StateEnd, fmt.Errorf("%w from %s", errNoTransition, current)
	}
}

type RouterConfig struct {
	Defaults      domain.RetrievalConfig
	WebMaxResults int
	StageTimeout  time.Duration
}

// ProposerFactory returns the tool proposer for an llm_provider name.
type ProposerFactory func(provider string) ports.ToolProposer

// AgentRouter sequences guardrails, retrieval, the web-search decision and
// response generation for one chat turn.
type AgentRouter struct {
	guard     *guardrail.Engine
	retriever *Retriever
	models    *ChatModels
	proposers ProposerFactory
	web       ports.WebSearcher
	cfg       RouterConfig
	logger    *zap.Logger
}

func NewAgentRouter(
	guard *guardrail.Engine,
	retriever *Retriever,
	models *ChatModels,
	proposers ProposerFactory,
	web ports.WebSearcher,
	cfg RouterConfig,
	logger *zap.Logger,
) *AgentRouter {
	if guard == nil {
		guard = guardrail.NewEngine(guardrail.DefaultConfig())
	}
	if proposers == nil {
		proposers = func(provider string) ports.ToolProposer {
			return NewWebSearchProposer(models.For(provider))
		}
	}
	if cfg.Defaults == (domain.RetrievalConfig{}) {
		cfg.Defaults = domain.DefaultRetrievalConfig()
	}
	if cfg.WebMaxResults <= 0 {
		cfg.WebMaxResults = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentRouter{
		guard:     guard,
		retriever: retriever,
		models:    models,
		proposers: proposers,
		web:       web,
		cfg:       cfg,
		logger:    logger,
	}
}

// turnSink receives progress from a running turn and delivers the answer.
// The sync sink generates in one call, the stream sink emits tokens.
type turnSink interface {
	Status(text string)
	Event(ev domain.StreamEvent)
	Deliver(ctx context.Context, model ports.ChatModel, plan responsePlan) (string, error)
}

// Answer runs the turn to completion. Only generation failures are returned
// as errors. A blocked input is a normal result.
func (r *AgentRouter) Answer(ctx context.Context, req domain.AgentRequest) (*domain.AgentResult, error) {
	st, variant, err := r.prepare(req)
	if err != nil {
		return nil, err
	}

	sink := &syncSink{guard: r.guard, logger: r.logger}
	if err := r.run(ctx, st, variant, sink); err != nil {
		return nil, err
	}
	return resultFromState(st), nil
}

func (r *AgentRouter) prepare(req domain.AgentRequest) (*AgentState, domain.AgentVariant, error) {
	st := newAgentState(req, r.cfg.Defaults)
	if st.Query == "" {
		return nil, "", domain.WrapError(domain.ErrInvalidInput, "agent answer", fmt.Errorf("query is required"))
	}
	variant := req.Variant
	if variant == "" {
		variant = domain.VariantAgentic
	}
	return st, domain.ParseAgentVariant(string(variant)), nil
}

func (r *AgentRouter) run(ctx context.Context, st *AgentState, variant domain.AgentVariant, sink turnSink) error {
	current := StateStart
	for steps := 0; current != StateEnd; steps++ {
		if steps >= maxSteps {
			return fmt.Errorf("agent router exceeded %d steps at %s", maxSteps, current)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.execute(ctx, current, st, variant, sink); err != nil {
			return err
		}
		next, err := Next(current, st, variant)
		if err != nil {
			return err
		}
		r.logger.Debug("agent transition", zap.Stringer("from", current), zap.Stringer("to", next))
		current = next
	}
	return nil
}

// execute performs the side effects of entering a state.
func (r *AgentRouter) execute(ctx context.Context, current State, st *AgentState, variant domain.AgentVariant, sink turnSink) error {
	switch current {
	case StateGuardrailInput:
		r.checkInput(st, sink)
	case StateRAGSearch:
		sink.Status("Searching your documents...")
		r.search(ctx, st)
	case StateAgentDecision:
		sink.Status("Not found in documents. Checking if web search needed...")
		r.decide(ctx, st)
	case StateWebSearch:
		sink.Status("Searching the web...")
		r.searchWeb(ctx, st)
	case StateRespond:
		return r.respond(ctx, st, variant, sink)
	}
	return nil
}

func (r *AgentRouter) checkInput(st *AgentState, sink turnSink) {
	sink.Status("Checking message safety...")
	st.InputVerdict = r.guard.CheckInput(st.Query)

	switch st.InputVerdict.Status {
	case domain.GuardrailBlock:
		r.logger.Info("input blocked",
			zap.String("category", st.InputVerdict.Category),
			zap.String("query", guardrail.MaskPII(st.Query)),
		)
		st.Mode = domain.ModeBlocked
		st.Response = st.InputVerdict.Message
		sink.Event(domain.StreamEvent{
			Type:     domain.EventGuardrailBlocked,
			Content:  st.InputVerdict.Message,
			Category: st.InputVerdict.Category,
		})
	case domain.GuardrailWarn:
		r.logger.Warn("input guardrail warning",
			zap.String("category", st.InputVerdict.Category),
			zap.String("query", guardrail.MaskPII(st.Query)),
		)
	}
}

func (r *AgentRouter) search(ctx context.Context, st *AgentState) {
	if len(st.DocumentIDs) == 0 || r.retriever == nil {
		st.HasResults = false
		return
	}

	stageCtx, cancel := r.stageContext(ctx)
	defer cancel()

	outcome := r.retriever.Retrieve(stageCtx, st.Query, st.History, st.DocumentIDs, st.Config)
	st.RetrievedContext = outcome.Context
	st.Citations = outcome.Citations
	st.Images = outcome.Images
	st.HasResults = outcome.HasResults
	if st.Citations == nil {
		st.Citations = []domain.Citation{}
	}
}

func (r *AgentRouter) decide(ctx context.Context, st *AgentState) {
	stageCtx, cancel := r.stageContext(ctx)
	defer cancel()

	call, text, err := r.proposers(st.Config.LLMProvider).ProposeToolCall(stageCtx, st.Query)
	if err != nil {
		r.logger.Warn("agent decision failed", zap.Error(err))
		return
	}
	if call != nil {
		st.UseWebSearch = true
		st.WebQuery = call.StringArgument("query")
		if st.WebQuery == "" {
			st.WebQuery = st.Query
		}
		return
	}
	st.DirectResponse = text
}

func (r *AgentRouter) searchWeb(ctx context.Context, st *AgentState) {
	if r.web == nil {
		r.logger.Warn("web search requested but not configured")
		return
	}

	stageCtx, cancel := r.stageContext(ctx)
	defer cancel()

	resp, err := r.web.Search(stageCtx, st.WebQuery, r.cfg.WebMaxResults)
	if err != nil {
		r.logger.Warn("web search failed", zap.Error(err))
		return
	}
	st.WebContext, st.WebSources = FormatWebResults(resp)
}

func (r *AgentRouter) respond(ctx context.Context, st *AgentState, variant domain.AgentVariant, sink turnSink) error {
	plan := planResponse(st, variant)
	st.Mode = plan.mode

	switch plan.mode {
	case domain.ModeDocuments:
		sink.Status("Found in documents! Generating answer...")
		sink.Event(domain.StreamEvent{Type: domain.EventCitations, Content: st.Citations})
	case domain.ModeWeb:
		if len(st.WebSources) > 0 {
			sink.Event(domain.StreamEvent{Type: domain.EventWebSources, Content: st.WebSources})
			sink.Status("Generating answer from web...")
		} else {
			sink.Status("Generating response...")
		}
	default:
		sink.Status("Generating response...")
	}

	text, err := sink.Deliver(ctx, r.models.For(st.Config.LLMProvider), plan)
	st.Response = text
	if errors.Is(err, errOutputBlocked) {
		return nil
	}
	if err != nil {
		return domain.WrapError(domain.ErrGeneration, "generate response", err)
	}

	if ss, ok := sink.(*syncSink); ok {
		st.OutputVerdict = ss.verdict
	}
	return nil
}

func (r *AgentRouter) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.StageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.StageTimeout)
}

func resultFromState(st *AgentState) *domain.AgentResult {
	result := &domain.AgentResult{
		Response:      st.Response,
		Citations:     st.Citations,
		WebSources:    st.WebSources,
		HasResults:    st.HasResults,
		Mode:          st.Mode,
		Blocked:       st.InputVerdict.Blocked(),
		InputVerdict:  st.InputVerdict,
		OutputVerdict: st.OutputVerdict,
	}
	if result.Blocked {
		result.Citations = []domain.Citation{}
		result.WebSources = []domain.WebSource{}
	}
	return result
}

// syncSink generates in one call and treats the output guardrail as advisory.
type syncSink struct {
	guard   *guardrail.Engine
	logger  *zap.Logger
	verdict *domain.GuardrailVerdict
}

func (s *syncSink) Status(string) {}

func (s *syncSink) Event(domain.StreamEvent) {}

func (s *syncSink) Deliver(ctx context.Context, model ports.ChatModel, plan responsePlan) (string, error) {
	text := plan.verbatim
	if text == "" {
		generated, err := model.Generate(ctx, plan.messages)
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(generated)
	}

	v := s.guard.CheckOutput(text)
	s.verdict = &v
	if v.Blocked() {
		s.logger.Warn("output guardrail flagged response", zap.String("category", v.Category))
	}
	return text, nil
}
