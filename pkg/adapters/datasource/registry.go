package datasource

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/crypto"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// AdapterInfo describes a registered adapter.
type AdapterInfo struct {
	Type        models.DatabaseType `json:"type"`
	DisplayName string              `json:"display_name"`
	Description string              `json:"description"`
	Features    FeatureSet          `json:"features"`
}

// FactoryFunc opens an adapter. The connection string is only reachable
// through secret, which is zeroed once the factory returns.
type FactoryFunc func(ctx context.Context, secret *crypto.Secret, cfg *config.Config, logger *zap.Logger) (Adapter, error)

// Registration contains info plus the factory for an engine.
type Registration struct {
	Info    AdapterInfo
	Factory FactoryFunc
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.DatabaseType]Registration)
)

// Register is called by each engine's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, ordered by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the factory for a database type.
// Returns nil if the type is not registered.
func GetFactory(dbType models.DatabaseType) FactoryFunc {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[dbType]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if an adapter type is compiled in.
func IsRegistered(dbType models.DatabaseType) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dbType]
	return ok
}
