// cache.go - Begrenzter LRU-Cache fuer Gewichts-Sets
//
// Der Cache gehoert genau einem Worker und wird nur von dessen Goroutine
// benutzt. Eintraege werden nach dem Einfuegen nie veraendert.
package model

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/neivs/llmsandbox/logutil"
)

// CacheKey identifiziert ein Gewichts-Set. Verschiedene Hyperparameter teilen nie Gewichte.
type CacheKey struct {
	Seed            int64
	Hyperparameters Hyperparameters
}

// WeightCache haelt die zuletzt benutzten Gewichts-Sets.
// Der aelteste Eintrag steht vorne, der zuletzt benutzte hinten.
type WeightCache struct {
	capacity int
	entries  *orderedmap.OrderedMap[CacheKey, *WeightSet]

	hits, misses int
}

// NewWeightCache erzeugt einen Cache mit capacity Eintraegen; 0 deaktiviert ihn
func NewWeightCache(capacity int) *WeightCache {
	return &WeightCache{
		capacity: max(capacity, 0),
		entries:  orderedmap.New[CacheKey, *WeightSet](),
	}
}

// Get gibt das Set fuer key zurueck und markiert es als zuletzt benutzt
func (c *WeightCache) Get(key CacheKey) (*WeightSet, bool) {
	ws, ok := c.entries.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}

	c.hits++
	_ = c.entries.MoveToBack(key)
	return ws, true
}

// Put fuegt ws ein und verdraengt bei Bedarf den aeltesten Eintrag
func (c *WeightCache) Put(key CacheKey, ws *WeightSet) {
	if c.capacity == 0 {
		return
	}

	if _, present := c.entries.Set(key, ws); present {
		_ = c.entries.MoveToBack(key)
		return
	}

	for c.entries.Len() > c.capacity {
		oldest := c.entries.Oldest()
		logutil.Trace("evicting weights", "seed", oldest.Key.Seed, "hyperparameters", oldest.Key.Hyperparameters)
		c.entries.Delete(oldest.Key)
	}
}

// Load gibt das gecachte Set zurueck oder initialisiert und speichert ein neues
func (c *WeightCache) Load(seed int64, hp Hyperparameters) (*WeightSet, error) {
	key := CacheKey{Seed: seed, Hyperparameters: hp}
	if ws, ok := c.Get(key); ok {
		logutil.Trace("weight cache hit", "seed", seed, "hyperparameters", hp)
		return ws, nil
	}

	logutil.Trace("weight cache miss", "seed", seed, "hyperparameters", hp)
	ws, err := InitWeights(seed, hp)
	if err != nil {
		return nil, err
	}

	c.Put(key, ws)
	return ws, nil
}

// Len gibt die Anzahl gecachter Sets zurueck
func (c *WeightCache) Len() int {
	return c.entries.Len()
}

// Stats gibt Treffer und Fehlgriffe seit der Erzeugung zurueck
func (c *WeightCache) Stats() (hits, misses int) {
	return c.hits, c.misses
}

// keys gibt die Schluessel vom aeltesten zum zuletzt benutzten zurueck
func (c *WeightCache) keys() []CacheKey {
	keys := make([]CacheKey, 0, c.entries.Len())
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}
