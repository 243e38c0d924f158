package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// PriceCache is the persisted last-good-price document used to recover from
// total provider unavailability across restarts.
type PriceCache struct {
	Price float64 `json:"price"`
	Epoch int64   `json:"epoch"`
}

// SaveLastPrice persists the most recent accepted price.
func SaveLastPrice(path string, price float64) error {
	if price <= 0 {
		return fmt.Errorf("refusing to cache non-positive price %f", price)
	}
	return WriteJSONAtomic(path, PriceCache{Price: price, Epoch: time.Now().Unix()})
}

// LoadLastPrice returns the cached price and whether a usable one exists.
func LoadLastPrice(path string) (PriceCache, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PriceCache{}, false
	}

	var cache PriceCache
	if err := json.Unmarshal(data, &cache); err != nil || cache.Price <= 0 {
		return PriceCache{}, false
	}
	return cache, true
}
