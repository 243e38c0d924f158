package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	logger "github.com/sirupsen/logrus"

	"perpsim/src/model"
)

// State is the one logical simulation document, rewritten atomically each
// cycle. TradeHistory holds closed positions only.
type State struct {
	StartingBalance float64                   `json:"starting_balance"`
	CurrentBalance  float64                   `json:"current_balance"`
	Positions       map[string]model.Position `json:"positions"`
	TradeHistory    []model.Position          `json:"trade_history"`
	Metrics         model.PortfolioMetrics    `json:"metrics"`
}

// WriteJSONAtomic writes v to path via a temp file in the same directory and
// a rename, so a crash mid-write never leaves a truncated document behind.
func WriteJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// SaveState persists the simulation document. Callers treat failures as
// warnings: the loop keeps running in memory and retries next cycle.
func SaveState(path string, state *State) error {
	return WriteJSONAtomic(path, state)
}

// LoadState reads the simulation document. A missing file is a fresh start
// and returns (nil, nil).
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode state file %s: %w", path, err)
	}
	if state.Positions == nil {
		state.Positions = map[string]model.Position{}
	}

	logger.WithFields(logger.Fields{
		"open_positions": len(state.Positions),
		"closed_trades":  len(state.TradeHistory),
	}).Info("Loaded simulation state")

	return &state, nil
}
