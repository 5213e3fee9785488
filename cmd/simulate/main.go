package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/booking-engine/internal/config"
	"github.com/clinicore/booking-engine/internal/db"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	RescheduleRatio float64
	CancelRatio     float64
	ReadRatio       float64
	DoctorLimit     int
	HorizonDays     int
	PostgresDSN     string
}

type slotRef struct {
	DoctorID uuid.UUID
	Date     string
	Start    string
	End      string
}

type DataPool struct {
	Doctors []uuid.UUID

	mu           sync.RWMutex
	slots        []slotRef
	appointments []uuid.UUID
}

func (dp *DataPool) SetSlots(slots []slotRef) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.slots = slots
}

func (dp *DataPool) GetRandomSlot(rng *rand.Rand) (slotRef, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.slots) == 0 {
		return slotRef{}, false
	}
	return dp.slots[rng.Intn(len(dp.slots))], true
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	RateLimit int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&om.Error, 1)
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status == http.StatusTooManyRequests:
		atomic.AddInt64(&om.RateLimit, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Availability OperationMetrics
	Booking      OperationMetrics
	Reschedule   OperationMetrics
	Cancel       OperationMetrics
	ReadByID     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f reschedule=%.2f cancel=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.RescheduleRatio, cfg.CancelRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded %d doctors", len(dataPool.Doctors))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	// Prime the slot pool so booking workers contend over the same small
	// set of intervals from the first tick.
	sim.refreshSlots(ctx)

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.5),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.1),
		CancelRatio:     getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		DoctorLimit:     getInt("SIM_DOCTOR_LIMIT", 10),
		HorizonDays:     getInt("SIM_HORIZON_DAYS", 7),
		PostgresDSN:     baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.RescheduleRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.RescheduleRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT d.id
		FROM doctors d
		JOIN doctor_schedules s ON s.doctor_id = d.id
		WHERE d.active AND s.active
		LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, id)
	}

	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no active doctors loaded, run cmd/seed first")
	}
	return dataPool, nil
}

// refreshSlots pulls open slots through the public availability endpoint so
// the simulation exercises the same read path real clients use.
func (s *Simulator) refreshSlots(ctx context.Context) {
	from := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	to := time.Now().AddDate(0, 0, s.config.HorizonDays).Format("2006-01-02")

	var all []slotRef
	for _, doctorID := range s.pool.Doctors {
		start := time.Now()
		url := fmt.Sprintf("%s/availability?doctor_id=%s&from=%s&to=%s&max=200",
			s.config.APIBaseURL, doctorID, from, to)

		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := s.client.Do(req)
		latency := time.Since(start)
		if err != nil {
			s.metrics.Availability.Record(latency, 0, err)
			continue
		}

		var payload struct {
			Slots []struct {
				DoctorID uuid.UUID `json:"doctor_id"`
				Date     string    `json:"date"`
				Start    time.Time `json:"start"`
				End      time.Time `json:"end"`
			} `json:"slots"`
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		s.metrics.Availability.Record(latency, resp.StatusCode, nil)

		if resp.StatusCode != http.StatusOK {
			continue
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			continue
		}
		for _, sl := range payload.Slots {
			all = append(all, slotRef{
				DoctorID: sl.DoctorID,
				Date:     sl.Date,
				Start:    sl.Start.Format("15:04"),
				End:      sl.End.Format("15:04"),
			})
		}
	}

	s.pool.SetSlots(all)
	log.Printf("slot pool refreshed: %d open slots", len(all))
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.RescheduleRatio:
				s.doReschedule(ctx, rng)
			case r < s.config.BookingRatio+s.config.RescheduleRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				s.doReadByID(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot, ok := s.pool.GetRandomSlot(rng)
	if !ok {
		return
	}

	reqBody := map[string]string{
		"doctor_id":      slot.DoctorID.String(),
		"date":           slot.Date,
		"start":          slot.Start,
		"end":            slot.End,
		"patient_name":   fmt.Sprintf("Sim Patient %d", rng.Intn(100000)),
		"patient_mobile": fmt.Sprintf("+1999%07d", rng.Intn(10000000)),
		"source":         "simulate",
	}
	body, _ := json.Marshal(reqBody)

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Booking.Record(latency, 0, err)
		return
	}
	defer resp.Body.Close()
	s.metrics.Booking.Record(latency, resp.StatusCode, nil)

	if resp.StatusCode == http.StatusCreated {
		var apptResp struct {
			ID uuid.UUID `json:"id"`
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(bodyBytes, &apptResp) == nil && apptResp.ID != uuid.Nil {
			s.pool.AddAppointment(apptResp.ID)
		}
	}
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	slot, ok := s.pool.GetRandomSlot(rng)
	if !ok {
		return
	}

	body, _ := json.Marshal(map[string]string{
		"date":  slot.Date,
		"start": slot.Start,
		"end":   slot.End,
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/reschedule", s.config.APIBaseURL, apptID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Reschedule.Record(latency, 0, err)
		return
	}
	resp.Body.Close()
	s.metrics.Reschedule.Record(latency, resp.StatusCode, nil)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	body, _ := json.Marshal(map[string]string{"reason": "simulation"})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/cancel", s.config.APIBaseURL, apptID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Cancel.Record(latency, 0, err)
		return
	}
	resp.Body.Close()
	s.metrics.Cancel.Record(latency, resp.StatusCode, nil)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/appointments/%s", s.config.APIBaseURL, apptID), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.ReadByID.Record(latency, 0, err)
		return
	}
	resp.Body.Close()
	s.metrics.ReadByID.Record(latency, resp.StatusCode, nil)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	rateLimited := atomic.LoadInt64(&om.RateLimit)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if rateLimited > 0 {
		fmt.Printf("  Rate limited: %d (%.1f%%)\n", rateLimited, float64(rateLimited)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
