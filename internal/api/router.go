package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-clinic-engine/internal/appointment"
	"github.com/hackgods/dental-clinic-engine/internal/coordinator"
	"github.com/hackgods/dental-clinic-engine/internal/inventory"
	"github.com/hackgods/dental-clinic-engine/internal/slots"
	"github.com/hackgods/dental-clinic-engine/internal/treatment"
)

// Coordinator is the write side: every operation that spans a transaction
// and publishes events.
type Coordinator interface {
	BookAppointment(ctx context.Context, d appointment.Draft) (*appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, id uuid.UUID, u appointment.Update) (*appointment.Appointment, error)
	ConfirmPayment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	CreateTreatment(ctx context.Context, d treatment.Draft, medications []inventory.Consumption) (*coordinator.TreatmentResult, error)
	CompleteTreatmentWithMedication(ctx context.Context, id uuid.UUID, u treatment.Update, medications []inventory.Consumption, actor string) (*coordinator.TreatmentResult, error)
	DeleteTreatment(ctx context.Context, id uuid.UUID) error
}

type Appointments interface {
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]appointment.Appointment, error)
	ListInRange(ctx context.Context, from, to time.Time, filter appointment.RangeFilter) ([]appointment.Appointment, error)
	Availability(ctx context.Context, from, to time.Time, filter appointment.RangeFilter) ([]slots.Slot, error)
	FreeSlots(ctx context.Context, from, to time.Time, filter appointment.RangeFilter) ([]slots.Slot, error)
	FreeSlotsForScopes(ctx context.Context, from, to time.Time, scopes []appointment.Scope) ([]slots.Slot, error)
}

type Treatments interface {
	Get(ctx context.Context, id uuid.UUID) (*treatment.Treatment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]treatment.Treatment, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]treatment.Treatment, error)
}

type Inventory interface {
	Get(ctx context.Context, id uuid.UUID) (*inventory.Item, error)
	List(ctx context.Context) ([]inventory.Item, error)
	LowStock(ctx context.Context) ([]inventory.Item, error)
	History(ctx context.Context, itemID uuid.UUID, limit int) ([]inventory.HistoryEntry, error)
}

// Ledger is the only way stock quantities change over HTTP.
type Ledger interface {
	CreateItem(ctx context.Context, d inventory.ItemDraft, actor string) (*inventory.Item, error)
	Increment(ctx context.Context, itemID uuid.UUID, quantity int, meta inventory.Meta) (*inventory.Change, error)
	Decrement(ctx context.Context, itemID uuid.UUID, quantity int, meta inventory.Meta) (*inventory.Change, error)
	Adjust(ctx context.Context, itemID uuid.UUID, newQuantity int, meta inventory.Meta) (*inventory.Change, error)
	Correct(ctx context.Context, itemID uuid.UUID, delta int, meta inventory.Meta) (*inventory.Change, error)
}

type RouterConfig struct {
	Coordinator  Coordinator
	Appointments Appointments
	Treatments   Treatments
	Inventory    Inventory
	Ledger       Ledger
	Catalog      *treatment.Catalog
	Location     *time.Location

	Health  *HealthHandler
	Events  http.Handler // WebSocket stream; omitted when nil
	Metrics http.Handler // Prometheus scrape endpoint; omitted when nil
	Logger  zerolog.Logger
}

// Handler holds the dependencies shared by every route.
type Handler struct {
	coord        Coordinator
	appointments Appointments
	treatments   Treatments
	inventory    Inventory
	ledger       Ledger
	catalog      *treatment.Catalog
	loc          *time.Location
	logger       zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	h := &Handler{
		coord:        cfg.Coordinator,
		appointments: cfg.Appointments,
		treatments:   cfg.Treatments,
		inventory:    cfg.Inventory,
		ledger:       cfg.Ledger,
		catalog:      cfg.Catalog,
		loc:          loc,
		logger:       cfg.Logger,
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(CallerMiddleware)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	if cfg.Events != nil {
		r.Method(http.MethodGet, "/events/ws", cfg.Events)
	}

	r.Get("/catalog/treatments", h.getCatalog)
	r.Get("/availability", h.getAvailability)

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.createAppointment)
		r.Get("/", h.listAppointments)
		r.Get("/{id}", h.getAppointment)
		r.Patch("/{id}", h.updateAppointment)
		r.Delete("/{id}", h.deleteAppointment)
		r.Post("/{id}/confirm", h.confirmAppointment)
	})

	r.Route("/treatments", func(r chi.Router) {
		r.Post("/", h.createTreatment)
		r.Get("/", h.listTreatments)
		r.Get("/{id}", h.getTreatment)
		r.Put("/{id}", h.replaceTreatment)
		r.Delete("/{id}", h.deleteTreatment)
	})

	r.Route("/inventory", func(r chi.Router) {
		r.Post("/", h.createItem)
		r.Get("/", h.listItems)
		r.Get("/low-stock", h.listLowStock)
		r.Get("/{id}", h.getItem)
		r.Get("/{id}/history", h.getItemHistory)
		r.Post("/{id}/restock", h.restockItem)
		r.Post("/{id}/consume", h.consumeItem)
		r.Put("/{id}/quantity", h.adjustItem)
		r.Post("/{id}/corrections", h.correctItem)
	})

	return r
}
