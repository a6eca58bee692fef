package main

import (
	"context"
	"fmt"
	"os"

	"github.com/zatekoja/inpatient-core/internal/adapters/database"
	"github.com/zatekoja/inpatient-core/internal/application/services"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
	"github.com/zatekoja/inpatient-core/pkg/config"
)

type seedRoom struct {
	number   string
	floor    int
	roomType string
	beds     []string
	price    float64
}

var seedRooms = []seedRoom{
	{number: "101", floor: 1, roomType: "general", beds: []string{"A", "B", "C", "D"}, price: 85},
	{number: "102", floor: 1, roomType: "general", beds: []string{"A", "B", "C", "D"}, price: 85},
	{number: "201", floor: 2, roomType: "semi-private", beds: []string{"A", "B"}, price: 140},
	{number: "202", floor: 2, roomType: "semi-private", beds: []string{"A", "B"}, price: 140},
	{number: "301", floor: 3, roomType: "private", beds: []string{"A"}, price: 260},
	{number: "ICU-1", floor: 3, roomType: "icu", beds: []string{"1", "2", "3"}, price: 900},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := observability.InitLogger("inpatient-seed", cfg.App.Env)
	ctx := context.Background()

	pgClient, err := postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to DB")
	}
	defer pgClient.Close()

	if os.Getenv("RESET_DB") == "true" {
		logger.Warn().Msg("RESET_DB=true detected, truncating tables before seeding")
		if _, err := pgClient.DB().ExecContext(ctx, `TRUNCATE TABLE admissions, beds, rooms`); err != nil {
			logger.Fatal().Err(err).Msg("failed to reset tables")
		}
	}

	svc := services.NewInpatientService(
		database.NewRoomAdapter(pgClient),
		database.NewBedAdapter(pgClient),
		database.NewAdmissionAdapter(pgClient),
		services.NewBedLocker(),
		logger,
	)

	created := 0
	for _, r := range seedRooms {
		room, err := svc.CreateRoom(ctx, services.CreateRoomInput{RoomNumber: r.number, Floor: r.floor, RoomType: r.roomType})
		if apperrors.IsConflict(err) {
			logger.Info().Str("room_number", r.number).Msg("room exists, skipping")
			continue
		}
		if err != nil {
			logger.Fatal().Err(err).Str("room_number", r.number).Msg("failed to create room")
		}
		for _, b := range r.beds {
			if _, err := svc.AddBed(ctx, room.ID, services.AddBedInput{BedNumber: b, DailyPrice: r.price}); err != nil {
				logger.Fatal().Err(err).Str("room_number", r.number).Str("bed_number", b).Msg("failed to add bed")
			}
		}
		created++
	}

	logger.Info().Int("rooms_created", created).Msg("seeding complete")
}
