package keymanager

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ubuygold/contentmill/internal/config"
	"github.com/ubuygold/contentmill/internal/db"
	"github.com/ubuygold/contentmill/internal/logger"
	"github.com/ubuygold/contentmill/internal/metrics"
	"github.com/ubuygold/contentmill/internal/model"
	"github.com/ubuygold/contentmill/internal/secret"
)

// Lease is a credential handed out for exactly one vendor call. The caller must report
// the outcome with ReleaseSuccess or ReleaseFailure.
type Lease struct {
	KeyID    uint
	Provider string
	Secret   string
}

// Probe performs a cheap vendor call with a secret and reports whether it is usable.
type Probe func(ctx context.Context, provider, secret string) error

// Manager defines the vault operations used by the dispatcher.
// This allows for mocking in tests.
type Manager interface {
	Acquire(provider string) (*Lease, error)
	ReleaseSuccess(keyID uint) error
	ReleaseFailure(keyID uint) error
	HasActiveKey(provider string) (bool, error)
}

// KeyView is the admin representation of a key. The secret is never exposed.
type KeyView struct {
	ID           uint       `json:"id"`
	Provider     string     `json:"provider"`
	Name         string     `json:"name"`
	MaskedSecret string     `json:"masked_secret"`
	Active       bool       `json:"active"`
	UsageCount   int64      `json:"usage_count"`
	LastUsedAt   *time.Time `json:"last_used_at"`
	ErrorCount   int        `json:"error_count"`
	DisabledAt   *time.Time `json:"disabled_at,omitempty"`
}

// KeyManager rotates provider credentials stored in the database.
// All rotation state lives in the store so several processes can share it.
type KeyManager struct {
	store            db.KeyStore
	sealer           *secret.Sealer
	logger           *slog.Logger
	disableThreshold int
	revivalCooldown  time.Duration
	now              func() time.Time
}

// NewKeyManager creates a new KeyManager.
func NewKeyManager(store db.KeyStore, sealer *secret.Sealer, cfg config.VaultConfig, log *slog.Logger) *KeyManager {
	threshold := cfg.DisableKeyThreshold
	if threshold <= 0 {
		threshold = 5
	}
	return &KeyManager{
		store:            store,
		sealer:           sealer,
		logger:           log.With("component", "keymanager"),
		disableThreshold: threshold,
		revivalCooldown:  time.Duration(cfg.RevivalCooldownMinutes) * time.Minute,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Acquire hands out the least recently used active key of a provider.
func (km *KeyManager) Acquire(provider string) (*Lease, error) {
	key, err := km.store.AcquireAPIKey(provider, km.now())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s key: %w", provider, err)
	}
	if key == nil {
		return nil, fmt.Errorf("%s: %w", provider, model.ErrNoActiveCredential)
	}

	plain, err := km.sealer.Open(key.SealedSecret)
	if err != nil {
		// A key that cannot be unsealed is as good as a failing one.
		if relErr := km.ReleaseFailure(key.ID); relErr != nil {
			km.logger.Error("Failed to record failure for unreadable key", "key_id", key.ID, "error", relErr)
		}
		return nil, fmt.Errorf("failed to unseal key %d: %w", key.ID, err)
	}

	metrics.KeyAcquisitions.WithLabelValues(provider).Inc()
	km.logger.Debug("Acquired key", "provider", provider, "key_id", key.ID, "key_suffix", logger.KeySuffix(plain), "usage_count", key.UsageCount)
	return &Lease{KeyID: key.ID, Provider: provider, Secret: plain}, nil
}

// ReleaseSuccess clears the consecutive error counter of a key.
func (km *KeyManager) ReleaseSuccess(keyID uint) error {
	if err := km.store.RecordAPIKeySuccess(keyID); err != nil {
		return fmt.Errorf("failed to release key %d: %w", keyID, err)
	}
	return nil
}

// ReleaseFailure records a failed call and disables the key once it reaches the threshold.
func (km *KeyManager) ReleaseFailure(keyID uint) error {
	disabled, err := km.store.RecordAPIKeyFailure(keyID, km.disableThreshold, km.now())
	if err != nil {
		return fmt.Errorf("failed to record failure for key %d: %w", keyID, err)
	}
	if disabled {
		km.logger.Warn("Disabling key due to reaching failure threshold", "key_id", keyID, "threshold", km.disableThreshold)
		metrics.KeysDisabled.Inc()
	}
	return nil
}

// ResetKey re-activates a key and clears its error counter.
func (km *KeyManager) ResetKey(keyID uint) error {
	if err := km.store.ResetAPIKey(keyID); err != nil {
		return err
	}
	km.logger.Info("Key reset", "key_id", keyID)
	return nil
}

// SetActive enables or disables a key by hand.
func (km *KeyManager) SetActive(keyID uint, active bool) error {
	return km.store.SetAPIKeyActive(keyID, active)
}

// HasActiveKey reports whether the provider has at least one usable key.
func (km *KeyManager) HasActiveKey(provider string) (bool, error) {
	count, err := km.store.CountActiveAPIKeys(provider)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddKey seals and stores a new active key.
func (km *KeyManager) AddKey(provider, name, plain string) (*KeyView, error) {
	provider = strings.TrimSpace(provider)
	plain = strings.TrimSpace(plain)
	if provider == "" || plain == "" {
		return nil, fmt.Errorf("provider and secret are required: %w", model.ErrConfiguration)
	}

	sealed, err := km.sealer.Seal(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to seal key: %w", err)
	}
	key := &model.APIKey{
		Provider:     provider,
		Name:         name,
		SealedSecret: sealed,
		Active:       true,
	}
	if err := km.store.CreateAPIKey(key); err != nil {
		return nil, err
	}
	km.logger.Info("Key added", "provider", provider, "key_id", key.ID, "key_suffix", logger.KeySuffix(plain))
	view := km.view(*key)
	return &view, nil
}

// ListKeys returns every key of a provider, or of all providers when provider is empty.
func (km *KeyManager) ListKeys(provider string) ([]KeyView, error) {
	keys, err := km.store.ListAPIKeys(provider)
	if err != nil {
		return nil, err
	}
	views := make([]KeyView, 0, len(keys))
	for _, key := range keys {
		views = append(views, km.view(key))
	}
	return views, nil
}

// DeleteKey removes a key from the vault.
func (km *KeyManager) DeleteKey(keyID uint) error {
	return km.store.DeleteAPIKey(keyID)
}

func (km *KeyManager) view(key model.APIKey) KeyView {
	masked := "****"
	if plain, err := km.sealer.Open(key.SealedSecret); err == nil {
		masked += logger.KeySuffix(plain)
	}
	return KeyView{
		ID:           key.ID,
		Provider:     key.Provider,
		Name:         key.Name,
		MaskedSecret: masked,
		Active:       key.Active,
		UsageCount:   key.UsageCount,
		LastUsedAt:   key.LastUsedAt,
		ErrorCount:   key.ErrorCount,
		DisabledAt:   key.DisabledAt,
	}
}

// ReviveDisabledKeys probes keys that have been disabled for longer than the cooldown
// and resets the ones that answer. It returns the number of revived keys.
func (km *KeyManager) ReviveDisabledKeys(ctx context.Context, probe Probe) int {
	keys, err := km.store.ListDisabledAPIKeys(km.now().Add(-km.revivalCooldown))
	if err != nil {
		km.logger.Error("Failed to load disabled keys", "error", err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}

	km.logger.Info("Starting check to revive disabled keys", "count", len(keys))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		revived int
	)
	for _, k := range keys {
		wg.Add(1)
		go func(key model.APIKey) {
			defer wg.Done()
			plain, err := km.sealer.Open(key.SealedSecret)
			if err != nil {
				km.logger.Warn("Skipping unreadable key", "key_id", key.ID, "error", err)
				return
			}
			if err := probe(ctx, key.Provider, plain); err != nil {
				km.logger.Debug("Key still failing check", "key_id", key.ID, "key_suffix", logger.KeySuffix(plain), "error", err)
				return
			}
			if err := km.store.ResetAPIKey(key.ID); err != nil {
				km.logger.Error("Failed to reset revived key", "key_id", key.ID, "error", err)
				return
			}
			km.logger.Info("Successfully revived key", "key_id", key.ID, "key_suffix", logger.KeySuffix(plain))
			mu.Lock()
			revived++
			mu.Unlock()
		}(k)
	}
	wg.Wait()
	km.logger.Info("Finished checking disabled keys", "revived", revived)
	return revived
}
