package executors

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"perpsim/src/ai"
	"perpsim/src/engine"
	"perpsim/src/model"
	"perpsim/src/signals"
	"perpsim/src/store"
)

type priceSource interface {
	GetPrice(ctx context.Context, symbol string) float64
}

type snapshotSource interface {
	Build(ctx context.Context, symbol string, price float64) model.MarketSnapshot
}

type TradeArchiver interface {
	Archive(ctx context.Context, position model.Position) error
}

// pendingOutcome remembers what the system believed when a position was
// opened, so the close can be fed back into weight adaptation and training.
type pendingOutcome struct {
	decision model.AggregatedDecision
	features ai.FeatureVector
}

// Loop drives one simulation cycle per tick: price, snapshot, scores,
// decision, position changes, mark-to-market, learning, persistence. All
// collaborators are injected; the loop owns no trading state of its own.
type Loop struct {
	cfg        Config
	prices     priceSource
	market     snapshotSource
	scorers    []signals.Scorer
	aggregator *signals.Aggregator
	learner    *ai.Scorer
	eng        *engine.Engine
	archive    TradeArchiver
	now        func() time.Time

	pending map[string]pendingOutcome
}

// NewLoop wires the cycle. archive may be nil when the trade database is
// disabled.
func NewLoop(
	cfg Config,
	prices priceSource,
	market snapshotSource,
	scorers []signals.Scorer,
	aggregator *signals.Aggregator,
	learner *ai.Scorer,
	eng *engine.Engine,
	archive TradeArchiver,
) *Loop {
	return &Loop{
		cfg:        cfg,
		prices:     prices,
		market:     market,
		scorers:    scorers,
		aggregator: aggregator,
		learner:    learner,
		eng:        eng,
		archive:    archive,
		now:        time.Now,
		pending:    map[string]pendingOutcome{},
	}
}

// Run executes cycles until the context is cancelled. The first cycle runs
// immediately; shutdown finishes with a final state write.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.LoopPeriod)
	defer ticker.Stop()

	l.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("loop stopped")
			l.persist()
			return nil

		case <-ticker.C:
			logger.Info("loop tick")
			l.runCycle(ctx)
		}
	}
}

// runCycle is the single-writer pass over all trading state. It never fails:
// every data source degrades to a usable default and persistence errors only
// log.
func (l *Loop) runCycle(ctx context.Context) {
	symbol := l.cfg.TargetSymbol

	price := l.prices.GetPrice(ctx, symbol)
	snap := l.market.Build(ctx, symbol, price)

	history := l.eng.TradeHistory()
	metrics := l.eng.Metrics()
	features := ai.ExtractFeatures(snap, history, metrics, l.now())

	scores := make([]model.SignalScore, 0, len(l.scorers))
	for _, scorer := range l.scorers {
		scores = append(scores, scorer.Score(snap, history, metrics))
	}
	decision := l.aggregator.Combine(scores)

	logger.WithFields(logger.Fields{
		"price":      price,
		"action":     decision.Action,
		"confidence": decision.Confidence,
		"score":      decision.CombinedScore,
	}).Info("Cycle decision")

	var closed []model.Position
	flipped, opened := l.eng.Apply(decision, symbol, price)
	if flipped != nil {
		closed = append(closed, *flipped)
	}
	if opened != nil {
		l.pending[opened.ID] = pendingOutcome{decision: decision, features: features}
	}

	closed = append(closed, l.eng.MarkToMarket(price)...)

	for _, trade := range closed {
		l.settle(ctx, trade, decision, features)
	}

	l.persist()
}

// settle feeds one realized trade back into weight adaptation, model
// training and the durable archive.
func (l *Loop) settle(ctx context.Context, trade model.Position, decision model.AggregatedDecision, features ai.FeatureVector) {
	outcome, ok := l.pending[trade.ID]
	if !ok {
		// Position predates this process (restored state); attribute it
		// to the current cycle's view.
		outcome = pendingOutcome{decision: decision, features: features}
	}
	delete(l.pending, trade.ID)

	l.aggregator.RecordOutcome(outcome.decision, trade)
	l.learner.Learn(outcome.features, trade)

	if l.archive != nil {
		if err := l.archive.Archive(ctx, trade); err != nil {
			logger.WithError(err).WithField("position_id", trade.ID).Warn("Failed to archive closed trade")
		}
	}
}

func (l *Loop) persist() {
	if err := store.SaveState(l.cfg.StatePath, l.eng.Snapshot()); err != nil {
		logger.WithError(err).Warn("Failed to persist simulation state")
	}
}
