package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"health-assistant/internal/domain"
	"health-assistant/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.DoctorRepo         = (*Postgres)(nil)
	_ domain.FeedbackRepo       = (*Postgres)(nil)
	_ domain.BusinessMetricRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// ListAvailableDoctors реализует domain.DoctorRepo.
func (p *Postgres) ListAvailableDoctors(ctx context.Context) ([]domain.Doctor, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id::text, name, specialty, location, COALESCE(phone, ''), COALESCE(email, ''),
       rating::float8, experience_years, available
FROM doctors
WHERE available
ORDER BY rating DESC
`)
	metrics.ObserveNetworkRequest("postgres", "doctors_list", "doctors", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var doctors []domain.Doctor
	for rows.Next() {
		var d domain.Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.Specialty, &d.Location, &d.Phone, &d.Email,
			&d.Rating, &d.ExperienceYears, &d.Available); err != nil {
			return nil, err
		}
		doctors = append(doctors, d)
	}
	return doctors, rows.Err()
}

// SaveFeedback реализует domain.FeedbackRepo. Пустые имя и email сохраняются как NULL.
func (p *Postgres) SaveFeedback(ctx context.Context, fb domain.Feedback) (domain.Feedback, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO feedback (name, email, message, rating, source)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at
`, nullString(fb.Name), nullString(fb.Email), fb.Message, fb.Rating, string(fb.Source)).Scan(&fb.ID, &fb.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "feedback_insert", "feedback", start, err)
	return fb, err
}

// RecordBusinessMetric сохраняет бизнесовую метрику в БД.
func (p *Postgres) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var payload []byte
	if metric.Metadata != nil {
		if data, err := json.Marshal(metric.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_metrics (event, metadata, occurred_at)
VALUES ($1, $2, $3)
`, metric.Event, payload, metric.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_insert", "business_metrics", start, err)
	return err
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
