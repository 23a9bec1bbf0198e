package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/ubuygold/contentmill/internal/model"

	"gorm.io/gorm"
)

// maxAcquireAttempts bounds how often AcquireAPIKey re-selects after losing a
// compare-and-swap to a concurrent acquirer.
const maxAcquireAttempts = 8

// KeyStore persists provider credentials and their rotation counters.
type KeyStore interface {
	CreateAPIKey(key *model.APIKey) error
	GetAPIKey(id uint) (*model.APIKey, error)
	ListAPIKeys(provider string) ([]model.APIKey, error)
	ListDisabledAPIKeys(disabledBefore time.Time) ([]model.APIKey, error)
	DeleteAPIKey(id uint) error
	CountActiveAPIKeys(provider string) (int64, error)
	AcquireAPIKey(provider string, now time.Time) (*model.APIKey, error)
	RecordAPIKeySuccess(id uint) error
	RecordAPIKeyFailure(id uint, disableThreshold int, now time.Time) (bool, error)
	ResetAPIKey(id uint) error
	SetAPIKeyActive(id uint, active bool) error
}

func (s *service) CreateAPIKey(key *model.APIKey) error {
	if err := s.db.Create(key).Error; err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

func (s *service) GetAPIKey(id uint) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.First(&key, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("api key %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get api key %d: %w", id, err)
	}
	return &key, nil
}

// ListAPIKeys returns every key, or only the keys of one provider when provider is not empty.
func (s *service) ListAPIKeys(provider string) ([]model.APIKey, error) {
	var keys []model.APIKey
	query := s.db.Model(&model.APIKey{})
	if provider != "" {
		query = query.Where("provider = ?", provider)
	}
	if err := query.Order("id asc").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

// ListDisabledAPIKeys returns inactive keys that were disabled before the given time.
func (s *service) ListDisabledAPIKeys(disabledBefore time.Time) ([]model.APIKey, error) {
	var keys []model.APIKey
	err := s.db.Where("active = ? AND disabled_at IS NOT NULL AND disabled_at <= ?", false, disabledBefore).
		Order("disabled_at asc").
		Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list disabled api keys: %w", err)
	}
	return keys, nil
}

func (s *service) DeleteAPIKey(id uint) error {
	result := s.db.Delete(&model.APIKey{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete api key %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("key %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *service) CountActiveAPIKeys(provider string) (int64, error) {
	var count int64
	err := s.db.Model(&model.APIKey{}).Where("provider = ? AND active = ?", provider, true).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active keys for %s: %w", provider, err)
	}
	return count, nil
}

// AcquireAPIKey selects the active key with the oldest last_used_at (never used keys
// first) and stamps it as used. The stamp is a compare-and-swap on usage_count, so a
// concurrent acquirer that stamped the same key first forces a re-selection.
// It returns nil, nil when the provider has no active key.
func (s *service) AcquireAPIKey(provider string, now time.Time) (*model.APIKey, error) {
	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		var key model.APIKey
		err := s.db.Where("provider = ? AND active = ?", provider, true).
			Order("last_used_at IS NOT NULL").
			Order("last_used_at asc").
			Order("id asc").
			First(&key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select key for %s: %w", provider, err)
		}

		result := s.db.Model(&model.APIKey{}).
			Where("id = ? AND usage_count = ? AND active = ?", key.ID, key.UsageCount, true).
			Updates(map[string]interface{}{
				"last_used_at": now,
				"usage_count":  gorm.Expr("usage_count + 1"),
			})
		if result.Error != nil {
			return nil, fmt.Errorf("failed to stamp key %d: %w", key.ID, result.Error)
		}
		if result.RowsAffected == 1 {
			key.LastUsedAt = &now
			key.UsageCount++
			return &key, nil
		}
	}
	return nil, fmt.Errorf("lost key selection race %d times for provider %s", maxAcquireAttempts, provider)
}

// RecordAPIKeySuccess clears the consecutive error counter of a key.
func (s *service) RecordAPIKeySuccess(id uint) error {
	result := s.db.Model(&model.APIKey{}).Where("id = ?", id).Update("error_count", 0)
	if result.Error != nil {
		return fmt.Errorf("failed to reset error count for key %d: %w", id, result.Error)
	}
	// It's okay if RowsAffected is 0, the key might have been removed.
	return nil
}

// RecordAPIKeyFailure increments the error counter of a key and disables it when the
// counter reaches the threshold. It returns true if this call disabled the key.
func (s *service) RecordAPIKeyFailure(id uint, disableThreshold int, now time.Time) (bool, error) {
	var disabled bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.APIKey{}).Where("id = ?", id).UpdateColumn("error_count", gorm.Expr("error_count + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("key %d not found during error count update: %w", id, model.ErrNotFound)
		}

		var key model.APIKey
		if err := tx.First(&key, id).Error; err != nil {
			return err
		}

		if key.ErrorCount >= disableThreshold && key.Active {
			err := tx.Model(&key).Updates(map[string]interface{}{
				"active":      false,
				"disabled_at": now,
			}).Error
			if err != nil {
				return err
			}
			disabled = true
		}
		return nil
	})
	return disabled, err
}

// ResetAPIKey is the explicit reset: the key is re-activated with a clean error counter.
func (s *service) ResetAPIKey(id uint) error {
	result := s.db.Model(&model.APIKey{}).Where("id = ?", id).Updates(map[string]interface{}{
		"error_count": 0,
		"active":      true,
		"disabled_at": nil,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to reset key %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("key %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// SetAPIKeyActive toggles a key by hand without touching its counters.
func (s *service) SetAPIKeyActive(id uint, active bool) error {
	result := s.db.Model(&model.APIKey{}).Where("id = ?", id).Update("active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to update key %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("key %d: %w", id, model.ErrNotFound)
	}
	return nil
}
