package trader

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hayden-dev/perpmind/internal/llm"
	"github.com/hayden-dev/perpmind/internal/market"
	"github.com/hayden-dev/perpmind/internal/retrieval"
)

// MinTradeBalance is the native-balance floor below which a cycle
// short-circuits to stay_idle: 0.002 of the native asset.
var MinTradeBalance = big.NewInt(2_000_000_000_000_000)

const heartbeatInterval = time.Minute

// BalanceReader reads the signer's native balance.
type BalanceReader interface {
	NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error)
}

// Scheduler drives the recurring trading cycle: balance gate, concurrent
// data gathering, reasoning, execution. Failures are contained per cycle
// and never stop the timer.
type Scheduler struct {
	aggregator *market.Aggregator
	retrieval  *retrieval.Client // nil disables augmentation
	completer  llm.Completer
	executor   *Executor
	balance    BalanceReader

	owner       common.Address
	targetAsset string
	interval    time.Duration

	// single-slot guard: a cycle overrunning the interval causes the next
	// tick to be skipped, not overlapped
	cycleMu sync.Mutex

	// most recent cycle id, carried on heartbeat events
	lastCycle atomic.Value

	log zerolog.Logger
}

func NewScheduler(aggregator *market.Aggregator, retrievalClient *retrieval.Client, completer llm.Completer, executor *Executor, balance BalanceReader, owner common.Address, targetAsset string, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Scheduler{
		aggregator:  aggregator,
		retrieval:   retrievalClient,
		completer:   completer,
		executor:    executor,
		balance:     balance,
		owner:       owner,
		targetAsset: targetAsset,
		interval:    interval,
		log:         log.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until ctx is cancelled. One cycle fires immediately, then on
// every interval tick. Cycles run in their own goroutine behind the
// single-slot guard so an in-flight cycle (confirmation waits, retries)
// never stalls the heartbeat.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	s.log.Info().Dur("interval", s.interval).Str("asset", s.targetAsset).Msg("scheduler started")
	go s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-heartbeat.C:
			evt := s.log.Info().Str("asset", s.targetAsset)
			if id, ok := s.lastCycle.Load().(string); ok {
				evt = evt.Str("last_cycle", id)
			}
			evt.Msg("heartbeat")
		case <-ticker.C:
			go s.tick(ctx)
		}
	}
}

// tick runs one cycle behind the single-slot guard, swallowing any error
// at this boundary.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.cycleMu.TryLock() {
		s.log.Warn().Msg("previous cycle still running, skipping tick")
		return
	}
	defer s.cycleMu.Unlock()

	cycleID := uuid.New().String()
	s.lastCycle.Store(cycleID)
	cycleLog := s.log.With().Str("cycle", cycleID).Logger()
	start := time.Now()

	if err := s.runCycle(ctx, cycleLog); err != nil {
		cycleLog.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("trading cycle failed")
		return
	}
	cycleLog.Info().Dur("elapsed", time.Since(start)).Msg("trading cycle complete")
}

func (s *Scheduler) runCycle(ctx context.Context, log zerolog.Logger) error {
	balance, err := s.balance.NativeBalance(ctx, s.owner)
	if err != nil {
		return err
	}
	if balance.Cmp(MinTradeBalance) < 0 {
		log.Info().Str("balance", balance.String()).Msg("balance below trade minimum")
		return s.executor.Execute(ctx, Decision{
			Action: ActionStayIdle,
			Reason: "balance below trade minimum",
		})
	}

	analysis, sentiment, err := s.aggregator.GatherAnalysis(ctx, s.targetAsset)
	if err != nil {
		return err
	}

	prompt := BuildDecisionPrompt(analysis, sentiment, s.retrieve(ctx, analysis, log))

	reply, err := s.completer.Complete(ctx, []*schema.Message{
		schema.SystemMessage(decisionSystemPrompt),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return err
	}

	decision := ParseDecision(reply)
	log.Info().
		Str("action", string(decision.Action)).
		Str("reason", decision.Reason).
		Msg("decision made")

	return s.executor.Execute(ctx, decision)
}

// retrieve fetches reference notes for the cycle. Best effort only: any
// failure yields an empty augmentation, never an aborted cycle.
func (s *Scheduler) retrieve(ctx context.Context, analysis market.Analysis, log zerolog.Logger) []retrieval.Doc {
	if s.retrieval == nil {
		return nil
	}
	query := string(analysis.Trend.Direction) + " " + analysis.Asset + " perpetual trading"
	docs, err := s.retrieval.Query(ctx, query)
	if err != nil {
		log.Warn().Err(err).Msg("retrieval augmentation failed, continuing without")
		return nil
	}
	return docs
}
