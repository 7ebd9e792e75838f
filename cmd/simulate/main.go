package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logger"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	ConfirmRatio  float64
	CancelRatio   float64
	ReadRatio     float64
	DoctorLimit   int
	PatientLimit  int
	HorizonDays   int
	PostgresDSN   string
	Location      *time.Location
	CancelReasons []string
}

type DataPool struct {
	Doctors      []uuid.UUID
	Patients     []uuid.UUID
	mu           sync.RWMutex
	appointments []uuid.UUID // appointments booked during this run
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
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	lo = latencies[0]
	hi = latencies[len(latencies)-1]
	p50 = latencies[min(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, lo, hi, p50, p95
}

type Metrics struct {
	Booking     OperationMetrics
	Confirm     OperationMetrics
	Cancel      OperationMetrics
	ReadByID    OperationMetrics
	ListDoctor  OperationMetrics
	Suggestions OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *zap.Logger
	metrics Metrics
}

func main() {
	zlog, err := logger.New(config.GetEnv("LOG_LEVEL", "info"), config.GetEnv("LOG_FORMAT", "console"), "simulate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zlog.Sync() }()

	cfg, err := loadConfig()
	if err != nil {
		zlog.Fatal("invalid config", zap.Error(err))
	}

	zlog.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("confirm", cfg.ConfirmRatio),
		zap.Float64("cancel", cfg.CancelRatio),
		zap.Float64("read", cfg.ReadRatio))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		zlog.Fatal("connect postgres", zap.Error(err))
	}
	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	pgPool.Close()
	if err != nil {
		zlog.Fatal("load data pool", zap.Error(err))
	}

	zlog.Info("data pool loaded", zap.Int("doctors", len(dataPool.Doctors)), zap.Int("patients", len(dataPool.Patients)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    zlog,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("base config: %w", err)
	}
	loc, err := baseCfg.Location()
	if err != nil {
		return SimConfig{}, err
	}

	cfg := SimConfig{
		APIBaseURL:    config.GetEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      config.GetDuration("SIM_DURATION", 30*time.Second),
		Workers:       config.GetInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio:  getFloat("SIM_CONFIRM_RATIO", 0.15),
		CancelRatio:   getFloat("SIM_CANCEL_RATIO", 0.05),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		DoctorLimit:   config.GetInt("SIM_DOCTOR_LIMIT", 100),
		PatientLimit:  config.GetInt("SIM_PATIENT_LIMIT", 4000),
		HorizonDays:   config.GetInt("SIM_HORIZON_DAYS", 7),
		PostgresDSN:   baseCfg.PostgresDSN,
		Location:      loc,
		CancelReasons: []string{"patient request", "doctor unavailable", "rebooked elsewhere"},
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	switch {
	case cfg.PostgresDSN == "":
		return cfg, fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	case cfg.Workers <= 0:
		return cfg, fmt.Errorf("SIM_WORKERS must be > 0")
	case cfg.Duration <= 0:
		return cfg, fmt.Errorf("SIM_DURATION must be > 0")
	case cfg.HorizonDays <= 0:
		return cfg, fmt.Errorf("SIM_HORIZON_DAYS must be > 0")
	}
	return cfg, nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	doctors, err := loadIDs(ctx, pool, `SELECT DISTINCT doctor_id FROM doctor_availability LIMIT $1`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	patients, err := loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	if len(doctors) == 0 {
		return nil, fmt.Errorf("no doctors with availability loaded")
	}
	if len(patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	return &DataPool{Doctors: doctors, Patients: patients}, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < c.BookingRatio:
			s.doBooking(ctx, rng)
		case r < c.BookingRatio+c.ConfirmRatio:
			s.doConfirm(ctx, rng)
		case r < c.BookingRatio+c.ConfirmRatio+c.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doListByDoctor(ctx, rng)
			case 2:
				s.doSuggestions(ctx, rng)
			}
		}
	}
}

// randomDay picks a date within the horizon, starting tomorrow.
func (s *Simulator) randomDay(rng *rand.Rand) time.Time {
	now := time.Now().In(s.config.Location)
	d := now.AddDate(0, 0, 1+rng.Intn(s.config.HorizonDays))
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.config.Location)
}

// randomStart lands on a quarter hour between 07:00 and 19:45, so most
// requests fall inside seeded working hours and collide with each other.
func (s *Simulator) randomStart(rng *rand.Rand) time.Time {
	day := s.randomDay(rng)
	return time.Date(day.Year(), day.Month(), day.Day(), 7+rng.Intn(13), 15*rng.Intn(4), 0, 0, s.config.Location)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	body, _ := json.Marshal(map[string]any{
		"request_id":       uuid.NewString(),
		"doctor_id":        doctorID.String(),
		"patient_id":       patientID.String(),
		"start":            s.randomStart(rng).Format(time.RFC3339),
		"duration_minutes": 15 * (1 + rng.Intn(3)),
	})

	start := time.Now()
	status, respBody, err := s.send(ctx, http.MethodPost, "/appointments", body)
	latency := time.Since(start)

	if err == nil && status == http.StatusCreated {
		var appt struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(respBody, &appt) == nil && appt.ID != uuid.Nil {
			s.pool.AddAppointment(appt.ID)
		}
	}

	// outside availability is reported as 409 alongside true conflicts
	s.metrics.Booking.Record(latency, err == nil && status == http.StatusCreated, err == nil && status == http.StatusConflict)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _, err := s.send(ctx, http.MethodPost, "/appointments/"+apptID.String()+"/confirm", nil)
	s.metrics.Confirm.Record(time.Since(start), err == nil && status == http.StatusOK, err == nil && status == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	body, _ := json.Marshal(map[string]string{
		"reason": s.config.CancelReasons[rng.Intn(len(s.config.CancelReasons))],
	})

	start := time.Now()
	status, _, err := s.send(ctx, http.MethodPost, "/appointments/"+apptID.String()+"/cancel", body)
	s.metrics.Cancel.Record(time.Since(start), err == nil && status == http.StatusOK, err == nil && status == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _, err := s.send(ctx, http.MethodGet, "/appointments/"+apptID.String(), nil)
	s.metrics.ReadByID.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doListByDoctor(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	day := s.randomDay(rng)

	q := url.Values{}
	q.Set("doctor_id", doctorID.String())
	q.Set("from", day.Format(time.RFC3339))
	q.Set("to", day.AddDate(0, 0, 1).Format(time.RFC3339))

	start := time.Now()
	status, _, err := s.send(ctx, http.MethodGet, "/appointments?"+q.Encode(), nil)
	s.metrics.ListDoctor.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doSuggestions(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	q := url.Values{}
	q.Set("date", s.randomDay(rng).Format(time.DateOnly))
	q.Set("duration", strconv.Itoa(15*(1+rng.Intn(3))))

	start := time.Now()
	status, _, err := s.send(ctx, http.MethodGet, "/doctors/"+doctorID.String()+"/suggestions?"+q.Encode(), nil)
	s.metrics.Suggestions.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) send(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		}
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		s.log.Debug("server error", zap.String("path", path), zap.Int("status", resp.StatusCode), zap.ByteString("body", respBody))
	}
	return resp.StatusCode, respBody, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Doctor", &s.metrics.ListDoctor)
	printOperationReport("Suggestions", &s.metrics.Suggestions)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
