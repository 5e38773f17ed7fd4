package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"ibrl/internal/errs"
	"ibrl/internal/models"
	"ibrl/internal/repository"
	"ibrl/internal/signal"
)

const (
	FeatureEngine        = "feature.engine"
	FeaturePriceTriggers = "feature.automation.price_triggers"
	FeatureDCA           = "feature.automation.dca"
	FeatureLLMIntents    = "feature.intent.llm_fallback"

	featureDetectorPrefix = "feature.detector."
)

func DetectorFeature(name string) string {
	return featureDetectorPrefix + name
}

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureEngine:        true,
		FeaturePriceTriggers: true,
		FeatureDCA:           true,
		// Off until an operator opts in to sending prompts to the model.
		FeatureLLMIntents: false,

		DetectorFeature(signal.NameDrawdownHedge):        true,
		DetectorFeature(signal.NameUSDCBuffer):           true,
		DetectorFeature(signal.NameVolatilityReduceRisk): true,
	}
}

type SystemSettingsService struct {
	Repo repository.Repository
}

// EnsureDefaultSwitches writes missing switches. Existing values are never overwritten.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			UpdatedBy:   "system",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool, by string) error {
	raw, _ := json.Marshal(enabled)
	return s.Put(ctx, key, raw, "feature switch", by)
}

// Put stores any JSON value. Feature switches must hold a boolean.
func (s *SystemSettingsService) Put(ctx context.Context, key string, value json.RawMessage, description, by string) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errs.Validation("key", "required")
	}
	if !json.Valid(value) {
		return errs.Validation("value", "must be valid JSON")
	}
	if strings.HasPrefix(key, "feature.") {
		var b bool
		if err := json.Unmarshal(value, &b); err != nil {
			return errs.Validation("value", "feature switches must be true or false")
		}
	}
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(value),
		Description: strings.TrimSpace(description),
		UpdatedBy:   strings.TrimSpace(by),
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

func (s *SystemSettingsService) Get(ctx context.Context, key string) (*models.SystemSetting, error) {
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errs.ErrNotFound
	}
	return item, nil
}

func (s *SystemSettingsService) List(ctx context.Context, prefix *string, limit, offset int) ([]models.SystemSetting, int64, error) {
	params := repository.ListSystemSettingsParams{Prefix: prefix, Limit: limit, Offset: offset, OrderBy: "key", Asc: boolPtr(true)}
	items, err := s.Repo.ListSystemSettings(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.CountSystemSettings(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func boolPtr(v bool) *bool { return &v }
