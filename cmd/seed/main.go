package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/booking-engine/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctors(context.Background(), pool, 50); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 5000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d doctors with schedules", count)

	timezones := []string{
		"Asia/Kolkata",
		"America/New_York",
		"Europe/London",
		"Australia/Sydney",
	}
	slotDurations := []int{15, 20, 30, 60}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		syncEnabled := gofakeit.Number(0, 9) < 7

		var calendarID, channelID *string
		if syncEnabled {
			cal := fmt.Sprintf("cal-%s", uuid.NewString()[:8])
			ch := fmt.Sprintf("chan-%s", uuid.NewString()[:8])
			calendarID, channelID = &cal, &ch
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, active, sync_enabled, calendar_id, channel_id, created_at, updated_at)
			VALUES ($1, $2, true, $3, $4, $5, now(), now())
		`, id, name, syncEnabled, calendarID, channelID)
		if err != nil {
			return err
		}

		// Mon-Fri, with a minority also working Saturday.
		workingDays := []int{1, 2, 3, 4, 5}
		if gofakeit.Number(0, 4) == 0 {
			workingDays = append(workingDays, 6)
		}

		dayStart := gofakeit.Number(8, 10) * 60
		dayEnd := gofakeit.Number(16, 19) * 60
		slotMinutes := slotDurations[gofakeit.Number(0, len(slotDurations)-1)]
		tz := timezones[gofakeit.Number(0, len(timezones)-1)]

		_, err = tx.Exec(ctx, `
			INSERT INTO doctor_schedules (doctor_id, working_days, day_start_minutes, day_end_minutes, slot_minutes, timezone, active)
			VALUES ($1, $2, $3, $4, $5, $6, true)
		`, id, workingDays, dayStart, dayEnd, slotMinutes, tz)
		if err != nil {
			return err
		}

		// A couple of upcoming leave days per doctor.
		for j := 0; j < gofakeit.Number(0, 2); j++ {
			leave := time.Now().AddDate(0, 0, gofakeit.Number(1, 28)).Format("2006-01-02")
			_, err = tx.Exec(ctx, `
				INSERT INTO doctor_leaves (doctor_id, leave_date)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, id, leave)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			mobile := gofakeit.Phone()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, mobile, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
				ON CONFLICT (mobile) DO NOTHING
			`, id, name, mobile)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
