package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var calendarID, channelID *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Active,
		&d.SyncEnabled,
		&calendarID,
		&channelID,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	if calendarID != nil {
		d.CalendarID = *calendarID
	}
	if channelID != nil {
		d.ChannelID = *channelID
	}
	return &d, nil
}

func (r *PgRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, active, sync_enabled, calendar_id, channel_id, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetDoctorByChannel(ctx context.Context, channelID string) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, active, sync_enabled, calendar_id, channel_id, created_at, updated_at
		FROM doctors
		WHERE channel_id = $1
	`, channelID)

	d, err := scanDoctor(row)
	if errors.Is(err, ErrDoctorNotFound) {
		return nil, ErrChannelNotFound
	}
	return d, err
}

func (r *PgRepository) ListSyncEnabledDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, active, sync_enabled, calendar_id, channel_id, created_at, updated_at
		FROM doctors
		WHERE active AND sync_enabled
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	return result, rows.Err()
}

func (r *PgRepository) GetSchedule(ctx context.Context, doctorID uuid.UUID) (*Schedule, error) {
	var s Schedule
	var workingDays []int

	err := r.pool.QueryRow(ctx, `
		SELECT doctor_id, working_days, day_start_minutes, day_end_minutes,
		       slot_minutes, timezone, active
		FROM doctor_schedules
		WHERE doctor_id = $1
	`, doctorID).Scan(
		&s.DoctorID,
		&workingDays,
		&s.DayStart,
		&s.DayEnd,
		&s.SlotMinutes,
		&s.Timezone,
		&s.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	s.WorkingDays = make(map[time.Weekday]bool, len(workingDays))
	for _, wd := range workingDays {
		s.WorkingDays[time.Weekday(wd)] = true
	}

	rows, err := r.pool.Query(ctx, `
		SELECT to_char(leave_date, 'YYYY-MM-DD')
		FROM doctor_leaves
		WHERE doctor_id = $1
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load leaves: %w", err)
	}
	defer rows.Close()

	s.Leaves = make(map[string]bool)
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, err
		}
		s.Leaves[date] = true
	}

	return &s, rows.Err()
}
