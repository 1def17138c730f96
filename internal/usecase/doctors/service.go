package doctors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"health-assistant/internal/domain"
	"health-assistant/internal/infra/metrics"
)

// CacheKey ключ списка доступных врачей в кэше.
const CacheKey = "doctors:available"

// Query задаёт фильтр справочника.
type Query struct {
	Specialty string
	Term      string
}

// Result ответ поиска вместе со списком специальностей для фильтра.
type Result struct {
	Doctors     []domain.Doctor `json:"doctors"`
	Specialties []string        `json:"specialties"`
}

// Service отдаёт справочник врачей.
type Service struct {
	repo    domain.DoctorRepo
	cache   domain.Cache
	ttl     time.Duration
	metrics domain.BusinessMetricRepo
	log     zerolog.Logger
}

// NewService создаёт сервис справочника. cache и metricsRepo могут быть nil.
func NewService(repo domain.DoctorRepo, cache domain.Cache, ttl time.Duration, metricsRepo domain.BusinessMetricRepo, logger zerolog.Logger) *Service {
	return &Service{repo: repo, cache: cache, ttl: ttl, metrics: metricsRepo, log: logger}
}

// List возвращает доступных врачей по убыванию рейтинга.
func (s *Service) List(ctx context.Context) ([]domain.Doctor, error) {
	if cached, ok := s.fromCache(); ok {
		return cached, nil
	}
	list, err := s.repo.ListAvailableDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("загрузка врачей: %w", err)
	}
	s.toCache(list)
	return list, nil
}

// Search загружает справочник и применяет фильтр.
func (s *Service) Search(ctx context.Context, q Query) (Result, error) {
	list, err := s.List(ctx)
	if err != nil {
		return Result{}, err
	}
	found := Filter(list, q)
	if s.metrics != nil && (strings.TrimSpace(q.Term) != "" || !isAll(q.Specialty)) {
		err := s.metrics.RecordBusinessMetric(ctx, domain.BusinessMetric{
			Event: domain.BusinessMetricEventDoctorsSearched,
			Metadata: map[string]any{
				"specialty": q.Specialty,
				"term":      q.Term,
				"found":     len(found),
			},
			OccurredAt: time.Now(),
		})
		if err != nil {
			s.log.Warn().Err(err).Msg("doctors: не удалось записать бизнес-метрику")
		}
	}
	return Result{Doctors: found, Specialties: Specialties(list)}, nil
}

func (s *Service) fromCache() ([]domain.Doctor, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(CacheKey)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.log.Warn().Err(err).Msg("doctors: ошибка чтения кэша")
		}
		metrics.IncDoctorsCache("miss")
		return nil, false
	}
	var list []domain.Doctor
	if err := json.Unmarshal(raw, &list); err != nil {
		s.log.Warn().Err(err).Msg("doctors: повреждённая запись кэша")
		metrics.IncDoctorsCache("corrupt")
		return nil, false
	}
	metrics.IncDoctorsCache("hit")
	return list, true
}

func (s *Service) toCache(list []domain.Doctor) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(list)
	if err != nil {
		s.log.Warn().Err(err).Msg("doctors: сериализация списка")
		return
	}
	if err := s.cache.Set(CacheKey, payload, s.ttl); err != nil {
		s.log.Warn().Err(err).Msg("doctors: ошибка записи кэша")
	}
}

// Filter отбирает врачей по специальности и подстроке, сохраняя порядок.
func Filter(list []domain.Doctor, q Query) []domain.Doctor {
	term := strings.ToLower(strings.TrimSpace(q.Term))
	out := make([]domain.Doctor, 0, len(list))
	for _, d := range list {
		if !isAll(q.Specialty) && d.Specialty != q.Specialty {
			continue
		}
		if term != "" && !matchesTerm(d, term) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Specialties возвращает "all" и различные специальности в порядке первого появления.
func Specialties(list []domain.Doctor) []string {
	out := []string{domain.SpecialtyAll}
	seen := make(map[string]struct{}, len(list))
	for _, d := range list {
		if _, ok := seen[d.Specialty]; ok {
			continue
		}
		seen[d.Specialty] = struct{}{}
		out = append(out, d.Specialty)
	}
	return out
}

func isAll(specialty string) bool {
	return specialty == "" || specialty == domain.SpecialtyAll
}

func matchesTerm(d domain.Doctor, term string) bool {
	return strings.Contains(strings.ToLower(d.Name), term) ||
		strings.Contains(strings.ToLower(d.Specialty), term) ||
		strings.Contains(strings.ToLower(d.Location), term)
}
