package report

import (
	logger "github.com/sirupsen/logrus"

	"perpsim/src/engine"
	"perpsim/src/model"
	"perpsim/src/store"
)

// PersistedPortfolio projects the simulation document for the read-only API.
// The writer process rewrites the file every cycle, so each call reloads it
// instead of serving a startup snapshot. A missing or unreadable document
// degrades to a fresh portfolio.
type PersistedPortfolio struct {
	cfg       engine.Config
	statePath string
}

func NewPersistedPortfolio(statePath string, cfg engine.Config) *PersistedPortfolio {
	return &PersistedPortfolio{cfg: cfg, statePath: statePath}
}

func (p *PersistedPortfolio) Summary() engine.Summary {
	return p.load().Summary()
}

func (p *PersistedPortfolio) OpenPositions() []model.Position {
	return p.load().OpenPositions()
}

func (p *PersistedPortfolio) load() *engine.Engine {
	state, err := store.LoadState(p.statePath)
	if err != nil {
		logger.WithError(err).WithField("path", p.statePath).Warn("Failed to load simulation state, serving fresh portfolio")
		state = nil
	}
	return engine.NewFromState(p.cfg, state)
}
