// Command simulate drives concurrent load against a running api-server and
// verifies afterwards that no dentist was double booked.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-clinic-engine/internal/api"
	"github.com/hackgods/dental-clinic-engine/internal/appointment"
	"github.com/hackgods/dental-clinic-engine/internal/config"
	"github.com/hackgods/dental-clinic-engine/internal/interval"
	"github.com/hackgods/dental-clinic-engine/internal/logging"
)

const simCaller = "simulator"

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	ReadRatio    float64
	ConsumeRatio float64
	Patients     int
	Dentists     int
	Days         int
	Location     *time.Location
}

type DataPool struct {
	Patients     []uuid.UUID
	Dentists     []uuid.UUID
	Services     []uuid.UUID
	Items        []uuid.UUID
	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		logging.New("simulate", "dev", "info").Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New("simulate", baseCfg.Env, baseCfg.LogLevel)

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid simulation config")
	}
	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("confirm", cfg.ConfirmRatio).
		Float64("read", cfg.ReadRatio).
		Float64("consume", cfg.ConsumeRatio).
		Msg("simulation config")

	sim := &Simulator{
		config: cfg,
		pool:   newDataPool(cfg),
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := sim.loadItems(ctx); err != nil {
		logger.Warn().Err(err).Msg("inventory not loaded, consume operations disabled")
	}
	cancel()

	sim.Run()
	sim.PrintReport()

	ctx, cancel = context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	overlaps, err := sim.VerifyNoOverlaps(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("overlap verification failed")
	}
	if overlaps > 0 {
		logger.Fatal().Int("overlaps", overlaps).Msg("double bookings detected")
	}
	logger.Info().Msg("no overlapping appointments found")
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.15),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.25),
		ConsumeRatio: getFloat("SIM_CONSUME_RATIO", 0.1),
		Patients:     getInt("SIM_PATIENTS", 200),
		Dentists:     getInt("SIM_DENTISTS", 3),
		Days:         getInt("SIM_DAYS", 2),
		Location:     base.Location(),
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.ReadRatio + cfg.ConsumeRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ReadRatio /= total
		cfg.ConsumeRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Dentists <= 0 || cfg.Patients <= 0 || cfg.Days <= 0 {
		return fmt.Errorf("SIM_DENTISTS, SIM_PATIENTS and SIM_DAYS must be > 0")
	}
	return nil
}

// newDataPool generates a fresh set of identities so repeated runs do not
// collide with earlier bookings. A small dentist pool keeps contention high.
func newDataPool(cfg SimConfig) *DataPool {
	dp := &DataPool{
		Patients: make([]uuid.UUID, cfg.Patients),
		Dentists: make([]uuid.UUID, cfg.Dentists),
		Services: []uuid.UUID{uuid.New(), uuid.New(), uuid.New()},
	}
	for i := range dp.Patients {
		dp.Patients[i] = uuid.New()
	}
	for i := range dp.Dentists {
		dp.Dentists[i] = uuid.New()
	}
	return dp
}

func (s *Simulator) loadItems(ctx context.Context) error {
	var items []api.ItemResponse
	if _, err := s.getJSON(ctx, "/inventory", &items); err != nil {
		return err
	}
	for _, it := range items {
		s.pool.Items = append(s.pool.Items, it.ID)
	}
	s.logger.Info().Int("items", len(s.pool.Items)).Msg("loaded inventory items")
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
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
			case r < s.config.BookingRatio+s.config.ConfirmRatio:
				s.doConfirm(ctx, rng)
			case r < s.config.BookingRatio+s.config.ConfirmRatio+s.config.ConsumeRatio:
				s.doConsume(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doAvailability(ctx, rng)
				} else {
					s.doListByPatient(ctx, rng)
				}
			}
		}
	}
}

// randomWindow picks a 30 or 60 minute window on the half-hour grid within
// clinic hours on one of the next few days.
func (s *Simulator) randomWindow(rng *rand.Rand) (time.Time, time.Time) {
	now := time.Now().In(s.config.Location)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.config.Location).
		AddDate(0, 0, 1+rng.Intn(s.config.Days))
	start := day.Add(9*time.Hour + time.Duration(rng.Intn(16))*30*time.Minute)
	return start, start.Add(time.Duration(1+rng.Intn(2)) * 30 * time.Minute)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	start, end := s.randomWindow(rng)
	dentistID := s.pool.Dentists[rng.Intn(len(s.pool.Dentists))]

	req := api.CreateAppointmentRequest{
		PatientID:     s.pool.Patients[rng.Intn(len(s.pool.Patients))],
		ServiceID:     s.pool.Services[rng.Intn(len(s.pool.Services))],
		DentistID:     &dentistID,
		Start:         start,
		End:           end,
		NumberOfTeeth: 1,
		ServiceFee:    int64(40+rng.Intn(200)) * 100,
	}

	began := time.Now()
	var created api.AppointmentResponse
	code, err := s.sendJSON(ctx, http.MethodPost, "/appointments", req, &created)
	latency := time.Since(began)

	success := err == nil && code == http.StatusCreated
	if success && created.ID != uuid.Nil {
		s.pool.AddAppointment(created.ID)
	}
	s.metrics.Booking.Record(latency, success, code == http.StatusConflict)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	began := time.Now()
	code, err := s.sendJSON(ctx, http.MethodPost, "/appointments/"+id.String()+"/confirm", nil, nil)
	s.metrics.Confirm.Record(time.Since(began), err == nil && code == http.StatusOK, code == http.StatusConflict)
}

func (s *Simulator) doConsume(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Items) == 0 {
		return
	}
	id := s.pool.Items[rng.Intn(len(s.pool.Items))]

	began := time.Now()
	code, err := s.sendJSON(ctx, http.MethodPost, "/inventory/"+id.String()+"/consume",
		api.StockRequest{Quantity: 1, Note: "simulated chairside use"}, nil)
	s.metrics.Consume.Record(time.Since(began), err == nil && code == http.StatusOK, code == http.StatusConflict)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	start, _ := s.randomWindow(rng)
	q := url.Values{}
	q.Set("from", start.Format(time.DateOnly))
	q.Set("dentistId", s.pool.Dentists[rng.Intn(len(s.pool.Dentists))].String())
	q.Set("free", "true")

	began := time.Now()
	var slots []api.SlotResponse
	code, err := s.getJSON(ctx, "/availability?"+q.Encode(), &slots)
	s.metrics.Availability.Record(time.Since(began), err == nil && code == http.StatusOK, false)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	began := time.Now()
	var apps []api.AppointmentResponse
	code, err := s.getJSON(ctx, "/appointments?patientId="+patientID.String(), &apps)
	s.metrics.ListByPatient.Record(time.Since(began), err == nil && code == http.StatusOK, false)
}

// VerifyNoOverlaps lists every dentist's bookings over the simulated days and
// counts pairs of blocking appointments that overlap.
func (s *Simulator) VerifyNoOverlaps(ctx context.Context) (int, error) {
	now := time.Now().In(s.config.Location)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.config.Location)
	to := from.AddDate(0, 0, s.config.Days+1)

	overlaps := 0
	for _, dentistID := range s.pool.Dentists {
		q := url.Values{}
		q.Set("from", from.Format(time.RFC3339))
		q.Set("to", to.Format(time.RFC3339))
		q.Set("dentistId", dentistID.String())

		var apps []api.AppointmentResponse
		code, err := s.getJSON(ctx, "/appointments?"+q.Encode(), &apps)
		if err != nil {
			return 0, err
		}
		if code != http.StatusOK {
			return 0, fmt.Errorf("list appointments for dentist %s: status %d", dentistID, code)
		}

		var booked []interval.Interval
		for _, a := range apps {
			if appointment.Status(a.Status).Blocking() {
				booked = append(booked, interval.Interval{Start: a.Start, End: a.End})
			}
		}
		for i := range booked {
			for j := i + 1; j < len(booked); j++ {
				if booked[i].Overlaps(booked[j]) {
					overlaps++
					s.logger.Error().
						Str("dentist_id", dentistID.String()).
						Time("a_start", booked[i].Start).
						Time("b_start", booked[j].Start).
						Msg("overlapping appointments")
				}
			}
		}
		s.logger.Info().Str("dentist_id", dentistID.String()).Int("blocking", len(booked)).Msg("dentist schedule checked")
	}
	return overlaps, nil
}

func (s *Simulator) getJSON(ctx context.Context, path string, out any) (int, error) {
	return s.sendJSON(ctx, http.MethodGet, path, nil, out)
}

func (s *Simulator) sendJSON(ctx context.Context, method, path string, in, out any) (int, error) {
	var body *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(api.CallerHeader, simCaller)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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
		if i, err := strconv.Atoi(v); err == nil {
			return i
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
