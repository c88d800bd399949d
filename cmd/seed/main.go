package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-clinic-engine/internal/appointment"
	"github.com/hackgods/dental-clinic-engine/internal/config"
	"github.com/hackgods/dental-clinic-engine/internal/coordinator"
	"github.com/hackgods/dental-clinic-engine/internal/db"
	"github.com/hackgods/dental-clinic-engine/internal/inventory"
	"github.com/hackgods/dental-clinic-engine/internal/logging"
	"github.com/hackgods/dental-clinic-engine/internal/notify"
	"github.com/hackgods/dental-clinic-engine/internal/treatment"
)

const seedActor = "seed"

var supplies = []struct {
	name     string
	category string
}{
	{"Lidocaine 2% cartridge", "anaesthetic"},
	{"Articaine 4% cartridge", "anaesthetic"},
	{"Amoxicillin 500mg", "antibiotic"},
	{"Ibuprofen 400mg", "analgesic"},
	{"Chlorhexidine rinse", "antiseptic"},
	{"Composite resin A2", "restorative"},
	{"Glass ionomer cement", "restorative"},
	{"Nitrile gloves (box)", "ppe"},
	{"Surgical masks (box)", "ppe"},
	{"Gutta-percha points", "endodontic"},
	{"Fluoride varnish", "preventive"},
	{"Whitening gel 16%", "cosmetic"},
}

var visitNotes = []string{
	"routine check-up",
	"patient reports sensitivity on the lower left",
	"follow-up after extraction",
	"scale and polish",
	"crown fitting",
	"",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("seed", "dev", "info").Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New("seed", cfg.Env, cfg.LogLevel)
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	faker := gofakeit.New(0)

	if err := seedInventory(context.Background(), pool, faker, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed inventory")
	}
	days := getInt("SEED_DAYS", 5)
	dentists := getInt("SEED_DENTISTS", 4)
	if err := seedAppointments(context.Background(), pool, faker, logger, days, dentists); err != nil {
		logger.Fatal().Err(err).Msg("seed appointments")
	}

	logger.Info().Msg("seed complete")
}

func seedInventory(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logger zerolog.Logger) error {
	logger.Info().Int("count", len(supplies)).Msg("seeding inventory items")

	ledger := inventory.NewLedger(pool, inventory.NewPgRepository(), notify.NewBroadcaster(nil), inventory.WithLogger(logger))
	for _, s := range supplies {
		expires := time.Now().AddDate(0, faker.Number(3, 24), 0)
		_, err := ledger.CreateItem(ctx, inventory.ItemDraft{
			Name:        s.name,
			Category:    s.category,
			Quantity:    faker.Number(0, 60),
			MinQuantity: faker.Number(5, 15),
			BatchNumber: faker.LetterN(2) + strconv.Itoa(faker.Number(1000, 9999)),
			Location:    "cabinet " + strconv.Itoa(faker.Number(1, 6)),
			Expiration:  &expires,
		}, seedActor)
		if err != nil {
			return err
		}
	}

	logger.Info().Msg("inventory seeded")
	return nil
}

// seedAppointments books through the coordinator so every row passes the
// same conflict checks as live traffic. Conflicts are skipped.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logger zerolog.Logger, days, dentistCount int) error {
	logger.Info().Int("days", days).Int("dentists", dentistCount).Msg("seeding appointments")

	coord := coordinator.New(pool, appointment.NewPgRepository(), treatment.NewMachine(treatment.NewPgRepository(), nil),
		inventory.NewLedger(pool, inventory.NewPgRepository(), notify.NewBroadcaster(nil)),
		notify.NewBroadcaster(nil),
		coordinator.WithScopes(appointment.ScopePatient, appointment.ScopeDentist),
		coordinator.WithLogger(logger),
	)

	dentists := make([]uuid.UUID, dentistCount)
	for i := range dentists {
		dentists[i] = uuid.New()
	}
	patients := make([]uuid.UUID, dentistCount*20)
	for i := range patients {
		patients[i] = uuid.New()
	}
	services := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	booked, skipped := 0, 0
	for d := 1; d <= days; d++ {
		day := today.AddDate(0, 0, d)
		for _, dentist := range dentists {
			for n := 0; n < 8; n++ {
				start := day.Add(9*time.Hour + time.Duration(faker.Number(0, 13))*30*time.Minute)
				dentistID := dentist
				_, err := coord.BookAppointment(ctx, appointment.Draft{
					PatientID:       patients[faker.Number(0, len(patients)-1)],
					ServiceID:       services[faker.Number(0, len(services)-1)],
					DentistID:       &dentistID,
					Start:           start,
					End:             start.Add(time.Duration(faker.Number(1, 2)) * 30 * time.Minute),
					Status:          appointment.StatusConfirmed,
					NumberOfTeeth:   faker.Number(1, 4),
					ServiceFeeCents: int64(faker.Number(40, 400)) * 100,
					Notes:           faker.RandomString(visitNotes),
					CreatedBy:       seedActor,
				})
				switch {
				case errors.Is(err, appointment.ErrSlotConflict):
					skipped++
				case err != nil:
					return err
				default:
					booked++
				}
			}
		}
		logger.Info().Str("day", day.Format(time.DateOnly)).Int("booked", booked).Msg("appointments seeded")
	}

	logger.Info().Int("booked", booked).Int("conflicts_skipped", skipped).Msg("appointments seeded")
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
