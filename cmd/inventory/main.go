package main

import (
	bookinghandler "busway/internal/bookings/handler"
	bookingrepo "busway/internal/bookings/repository"
	bookingservice "busway/internal/bookings/service"
	bookingvalidator "busway/internal/bookings/validator"
	"busway/internal/events"
	"busway/internal/ledger"
	"busway/internal/payments"
	"busway/internal/sweeper"
	"busway/internal/system"
	triphandler "busway/internal/trips/handler"
	triprepo "busway/internal/trips/repository"
	tripservice "busway/internal/trips/service"
	tripvalidator "busway/internal/trips/validator"
	"busway/pkg/app"
	"busway/pkg/config"
)

func main() {
	cfg := config.Load("inventory")
	cfg.SetMongo()

	seatLedger := ledger.NewMongoLedger(cfg)
	tripRepository := triprepo.NewMongoTripRepository(cfg)
	bookingRepository := bookingrepo.NewMongoBookingRepository(cfg)

	bookingValidator, err := bookingvalidator.NewBookingValidator(cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to build booking validator", "error", err)
	}

	publisher := events.ForConfig(cfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			cfg.Log.Error("Failed to close event publisher", "error", err)
		}
	}()

	bookingService := bookingservice.NewBookingService(
		bookingRepository, tripRepository, seatLedger, bookingValidator, publisher, cfg)
	tripService := tripservice.NewTripService(
		tripRepository, tripvalidator.NewTripValidator(cfg.Log), bookingService, cfg)

	holdSweeper, err := sweeper.NewSweeper(bookingService, cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to build hold sweeper", "error", err)
	}

	application := app.NewApplication(cfg)
	application.SetApp(
		system.NewHealthHandler(cfg),
		triphandler.NewTripHandler(tripService, cfg.Log),
		bookinghandler.NewBookingHandler(bookingService, cfg.Log),
		payments.NewPaymentHandler(bookingService, cfg.Log),
	)

	application.AddWorker(holdSweeper)
	if len(cfg.KafkaBrokers) > 0 {
		application.AddWorker(payments.NewConsumer(bookingService, cfg))
	}

	application.Run()
}
