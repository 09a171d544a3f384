// Package riskconfig stores the editable risk configuration: weights, thresholds and the
// three lookup lists. Unset keys read as the built-in defaults.
package riskconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opensource-finance/merchantrisk/internal/audit"
	"github.com/opensource-finance/merchantrisk/internal/cache"
	"github.com/opensource-finance/merchantrisk/internal/domain"
	"github.com/opensource-finance/merchantrisk/internal/logger"
	"github.com/opensource-finance/merchantrisk/internal/metrics"
	"github.com/opensource-finance/merchantrisk/internal/rules"
)

// SnapshotCacheKey is the single cache entry holding the assembled snapshot.
const SnapshotCacheKey = "riskconfig:snapshot"

// GenerationCacheKey holds a marker replaced after every committed write.
// A cached snapshot is served only while its marker matches.
const GenerationCacheKey = "riskconfig:generation"

const generationTTL = 24 * time.Hour

// Stored config_type values.
const (
	typeWeight    = "WEIGHT"
	typeThreshold = "THRESHOLD"
	typeList      = "LIST"
)

// Store reads and writes configuration overrides.
type Store struct {
	repo    domain.Repository
	cache   domain.Cache
	ttl     time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithCache caches snapshots in c for ttl.
func WithCache(c domain.Cache, ttl time.Duration) Option {
	return func(s *Store) {
		s.cache = c
		s.ttl = ttl
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = logger.OrNop(l) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a Store on repo.
func New(repo domain.Repository, opts ...Option) *Store {
	s := &Store{repo: repo, ttl: time.Minute, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Weights returns the effective weight table.
func (s *Store) Weights(ctx context.Context) (domain.Weights, error) {
	return getWeights(ctx, s.repo)
}

// Thresholds returns the effective level boundaries.
func (s *Store) Thresholds(ctx context.Context) (domain.Thresholds, error) {
	return getThresholds(ctx, s.repo)
}

// List returns the effective list of the given type.
func (s *Store) List(ctx context.Context, lt domain.ListType) ([]string, error) {
	return getList(ctx, s.repo, lt)
}

type cachedSnapshot struct {
	Generation string               `json:"generation"`
	Snapshot   *domain.RiskSnapshot `json:"snapshot"`
}

// Snapshot assembles the full configuration. It is served from cache when possible;
// cache failures fall back to the repository.
//
// The generation marker is read before the repository, so a fill that races a write
// is stored under the old marker and never served after the write completes.
func (s *Store) Snapshot(ctx context.Context) (*domain.RiskSnapshot, error) {
	if s.cache == nil {
		return loadSnapshot(ctx, s.repo)
	}

	gen, err := s.cache.Get(ctx, GenerationCacheKey)
	if err != nil {
		s.log.Warn("snapshot cache read failed", zap.Error(err))
		return loadSnapshot(ctx, s.repo)
	}

	var cached cachedSnapshot
	hit, err := cache.GetJSON(ctx, s.cache, SnapshotCacheKey, &cached)
	if err != nil {
		s.log.Warn("snapshot cache read failed", zap.Error(err))
	} else if hit && cached.Snapshot != nil && cached.Generation == string(gen) {
		return cached.Snapshot, nil
	}

	snap, err := loadSnapshot(ctx, s.repo)
	if err != nil {
		return nil, err
	}

	fill := cachedSnapshot{Generation: string(gen), Snapshot: snap}
	if err := cache.SetJSON(ctx, s.cache, SnapshotCacheKey, fill, s.ttl); err != nil {
		s.log.Warn("snapshot cache write failed", zap.Error(err))
	}
	return snap, nil
}

func loadSnapshot(ctx context.Context, repo domain.Repository) (*domain.RiskSnapshot, error) {
	w, err := getWeights(ctx, repo)
	if err != nil {
		return nil, err
	}
	t, err := getThresholds(ctx, repo)
	if err != nil {
		return nil, err
	}
	snap := &domain.RiskSnapshot{Weights: w, Thresholds: t}
	for _, lt := range []domain.ListType{domain.ListCountries, domain.ListIndustries, domain.ListMCCs} {
		items, err := getList(ctx, repo, lt)
		if err != nil {
			return nil, err
		}
		switch lt {
		case domain.ListCountries:
			snap.HighRiskCountries = items
		case domain.ListIndustries:
			snap.HighRiskIndustries = items
		case domain.ListMCCs:
			snap.BlacklistedMCCs = items
		}
	}
	return snap, nil
}

// SetWeights replaces the weight table and returns the previous one.
func (s *Store) SetWeights(ctx context.Context, w domain.Weights, meta domain.RequestMeta) (domain.Weights, error) {
	if err := ValidateWeights(w); err != nil {
		return nil, err
	}

	var prev domain.Weights
	err := s.write(ctx, domain.ConfigKeyWeights, typeWeight, "Risk factor weights", w, meta,
		func(tx domain.Repository) (map[string]any, map[string]any, error) {
			var err error
			if prev, err = getWeights(ctx, tx); err != nil {
				return nil, nil, err
			}
			return weightsSnapshot(prev), weightsSnapshot(w), nil
		})
	return prev, err
}

// SetThresholds replaces the level boundaries and returns the previous ones.
func (s *Store) SetThresholds(ctx context.Context, t domain.Thresholds, meta domain.RequestMeta) (domain.Thresholds, error) {
	if err := t.Validate(); err != nil {
		return domain.Thresholds{}, err
	}

	var prev domain.Thresholds
	err := s.write(ctx, domain.ConfigKeyThresholds, typeThreshold, "Risk level thresholds", t, meta,
		func(tx domain.Repository) (map[string]any, map[string]any, error) {
			var err error
			if prev, err = getThresholds(ctx, tx); err != nil {
				return nil, nil, err
			}
			return prev.Snapshot(), t.Snapshot(), nil
		})
	return prev, err
}

// SetList replaces one lookup list and returns the previous items.
// Items are trimmed and de-duplicated keeping the first occurrence.
func (s *Store) SetList(ctx context.Context, lt domain.ListType, items []string, meta domain.RequestMeta) ([]string, error) {
	key := domain.ConfigKeyForList(lt)
	if key == "" {
		return nil, fmt.Errorf("%w: unknown list type %q", domain.ErrValidation, lt)
	}
	clean, err := NormalizeList(items)
	if err != nil {
		return nil, err
	}

	var prev []string
	err = s.write(ctx, key, typeList, string(lt)+" risk list", clean, meta,
		func(tx domain.Repository) (map[string]any, map[string]any, error) {
			var err error
			if prev, err = getList(ctx, tx, lt); err != nil {
				return nil, nil, err
			}
			return map[string]any{"items": prev}, map[string]any{"items": clean}, nil
		})
	return prev, err
}

// write upserts key and appends its CONFIG_CHANGE entry in one transaction,
// then drops the cached snapshot.
func (s *Store) write(ctx context.Context, key, typ, description string, value any, meta domain.RequestMeta,
	diff func(tx domain.Repository) (prev, next map[string]any, err error)) error {

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	err = s.repo.InTx(ctx, func(tx domain.Repository) error {
		prev, next, err := diff(tx)
		if err != nil {
			return err
		}
		if err := tx.SaveRiskConfig(ctx, &domain.RiskConfigEntry{
			Key:         key,
			Value:       raw,
			Type:        typ,
			Description: description,
			UpdatedBy:   meta.Actor(),
		}); err != nil {
			return err
		}
		_, err = audit.New(tx).ConfigChange(ctx, key, prev, next, meta)
		return err
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx)
	s.metrics.ObserveConfigChange(key)
	logger.WithContext(ctx, s.log).Info("risk configuration updated",
		zap.String("config_key", key),
		zap.String("actor", meta.Actor()),
	)
	return nil
}

func (s *Store) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, GenerationCacheKey, []byte(uuid.NewString()), generationTTL); err != nil {
		s.log.Warn("snapshot generation update failed", zap.Error(err))
	}
	if err := s.cache.Delete(ctx, SnapshotCacheKey); err != nil {
		s.log.Warn("snapshot cache invalidation failed", zap.Error(err))
	}
}

// ValidateWeights checks that w is non-empty, names only known weights and keeps every value in 0..100.
func ValidateWeights(w domain.Weights) error {
	if len(w) == 0 {
		return fmt.Errorf("%w: weights must not be empty", domain.ErrValidation)
	}
	for _, name := range slices.Sorted(maps.Keys(w)) {
		if !rules.IsKnownWeight(name) {
			return fmt.Errorf("%w: unknown weight %q", domain.ErrValidation, name)
		}
		if v := w[name]; v < 0 || v > 100 {
			return fmt.Errorf("%w: weight %s must be between 0 and 100, got %d", domain.ErrValidation, name, v)
		}
	}
	return nil
}

// NormalizeList trims items, rejects blanks and drops later duplicates.
func NormalizeList(items []string) ([]string, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: list must contain at least one item", domain.ErrValidation)
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for i, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, fmt.Errorf("%w: list item %d is empty", domain.ErrValidation, i)
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out, nil
}

func getWeights(ctx context.Context, repo domain.Repository) (domain.Weights, error) {
	var w domain.Weights
	found, err := load(ctx, repo, domain.ConfigKeyWeights, &w)
	if err != nil || !found {
		return rules.DefaultWeights(), err
	}
	return w, nil
}

func getThresholds(ctx context.Context, repo domain.Repository) (domain.Thresholds, error) {
	var t domain.Thresholds
	found, err := load(ctx, repo, domain.ConfigKeyThresholds, &t)
	if err != nil || !found {
		return rules.DefaultThresholds(), err
	}
	return t, nil
}

func getList(ctx context.Context, repo domain.Repository, lt domain.ListType) ([]string, error) {
	key := domain.ConfigKeyForList(lt)
	if key == "" {
		return nil, fmt.Errorf("%w: unknown list type %q", domain.ErrValidation, lt)
	}
	var items []string
	found, err := load(ctx, repo, key, &items)
	if err != nil || !found {
		return rules.DefaultList(lt), err
	}
	return items, nil
}

func load(ctx context.Context, repo domain.Repository, key string, dst any) (bool, error) {
	entry, err := repo.GetRiskConfig(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal(entry.Value, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func weightsSnapshot(w domain.Weights) map[string]any {
	out := make(map[string]any, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
