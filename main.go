package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	logger "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"perpsim/src/ai"
	"perpsim/src/database"
	"perpsim/src/engine"
	"perpsim/src/executors"
	"perpsim/src/marketdata"
	"perpsim/src/pricefeed"
	"perpsim/src/report"
	"perpsim/src/repository"
	"perpsim/src/signals"
	"perpsim/src/store"
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()

	app := cli.NewApp()
	app.Name = "perpsim"
	app.Usage = "Perpetual futures paper-trading simulator"

	app.Commands = []cli.Command{
		runCMD,
		serverCMD,
		reportCMD,
		trainCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	runCMD = cli.Command{
		Name:        "run",
		Usage:       "run the trading simulation loop",
		Action:      runAction,
		Description: `Poll prices, score signals and simulate positions until interrupted`,
	}
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "serve the portfolio report API",
		Action:      serverAction,
		Description: `Read-only HTTP API over the persisted simulation state`,
	}
	reportCMD = cli.Command{
		Name:        "report",
		Usage:       "print the portfolio summary",
		Action:      reportAction,
		Description: `One-shot portfolio summary from the persisted simulation state`,
	}
	trainCMD = cli.Command{
		Name:        "train",
		Usage:       "train the signal model from trade history",
		Action:      trainAction,
		Description: `Fit the learned scorer on the persisted closed-trade history`,
	}
)

func runAction(_ *cli.Context) error {
	logger.Info("Starting simulation loop")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := executors.GetConfig()

	eng, err := restoreEngine(cfg.StatePath)
	if err != nil {
		return err
	}

	feedCfg := pricefeed.GetConfig()
	stream := pricefeed.NewStreamProvider(feedCfg.StreamURL, feedCfg.StreamMaxAge)
	go stream.Run(ctx)

	providers := append(pricefeed.DefaultProviders(feedCfg), stream)
	prices := pricefeed.NewAggregator(feedCfg, providers...)

	model, err := ai.LoadModel(cfg.ModelPath, cfg.ModelSeed)
	if err != nil {
		return err
	}
	learner := ai.NewScorer(model, cfg.ModelPath)

	scorers := []signals.Scorer{
		signals.RSIScorer{},
		signals.EMACrossScorer{},
		signals.BollingerScorer{},
		signals.FundingScorer{},
		signals.VolumeScorer{},
		signals.SentimentScorer{},
		learner,
	}
	aggregator := signals.NewAggregator(signals.GetConfig())

	var archive executors.TradeArchiver
	if db, dbErr := database.Connect(database.GetConfig()); dbErr != nil {
		logger.WithError(dbErr).Warn("Trade archive unavailable, continuing without it")
	} else {
		archive = repository.NewTradeRepository(db)
	}

	loop := executors.NewLoop(
		cfg,
		prices,
		marketdata.NewBuilder(marketdata.GetConfig()),
		scorers,
		aggregator,
		learner,
		eng,
		archive,
	)
	return loop.Run(ctx)
}

func serverAction(_ *cli.Context) error {
	logger.Info("Starting report server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := executors.GetConfig()

	db, err := database.Connect(database.GetConfig())
	if err != nil {
		return fmt.Errorf("connect trade archive: %w", err)
	}

	// The run process rewrites the state file every cycle; serve it per
	// request rather than a snapshot taken at startup.
	portfolio := report.NewPersistedPortfolio(cfg.StatePath, engine.GetConfig())

	report.StartServer(ctx, report.GetConfig().Port, portfolio, repository.NewTradeRepository(db))
	return nil
}

func reportAction(_ *cli.Context) error {
	cfg := executors.GetConfig()
	eng, err := restoreEngine(cfg.StatePath)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(eng.Summary())
}

func trainAction(_ *cli.Context) error {
	cfg := executors.GetConfig()

	state, err := store.LoadState(cfg.StatePath)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("no simulation state at %s, nothing to train on", cfg.StatePath)
	}

	model, err := ai.LoadModel(cfg.ModelPath, cfg.ModelSeed)
	if err != nil {
		return err
	}

	learner := ai.NewScorer(model, cfg.ModelPath)
	samples := ai.TrainingSetFromHistory(state.TradeHistory, state.Metrics)
	if err := learner.Retrain(samples); err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"samples":  len(samples),
		"accuracy": model.Accuracy,
	}).Info("Model trained and persisted")
	return nil
}

func restoreEngine(statePath string) (*engine.Engine, error) {
	state, err := store.LoadState(statePath)
	if err != nil {
		return nil, err
	}
	return engine.NewFromState(engine.GetConfig(), state), nil
}
