package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/config"
	"github.com/smarttransit/rail-reservation/internal/database"
	"github.com/smarttransit/rail-reservation/internal/lock"
	"github.com/smarttransit/rail-reservation/internal/metrics"
	"github.com/smarttransit/rail-reservation/internal/notification"
	"github.com/smarttransit/rail-reservation/internal/services"
)

// Runs one expiry sweep (and optionally one reminder pass) against the
// database, for deployments that schedule jobs outside the server.
func main() {
	var dbURLFlag string
	var reminders bool
	var timeout time.Duration
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&reminders, "reminders", false, "Also send departure reminders")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "Maximum run time")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Build minimal database config without loading full app config
	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	store := database.NewPostgresStore(db)
	m := metrics.New()
	seats := services.NewSeatReservationService(store, m, logger)

	bookingCfg := services.DefaultBookingServiceConfig()
	if v := os.Getenv("BOOKING_PENDING_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("invalid BOOKING_PENDING_TIMEOUT: %v", err)
		}
		bookingCfg.PendingTimeout = d
	}

	bookings := services.NewBookingService(store, seats, lock.NewLocalLocker(),
		notification.NewLogNotifier(logger), m, bookingCfg, logger)
	expiration := services.NewBookingExpirationService(bookings, m, logger)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	expired, err := expiration.RunOnce(ctx)
	if err != nil {
		log.Fatalf("expiry sweep failed: %v", err)
	}
	fmt.Printf("Expired %d pending booking(s).\n", expired)

	if reminders {
		sent, err := expiration.SendReminders(ctx)
		if err != nil {
			log.Fatalf("reminder pass failed: %v", err)
		}
		fmt.Printf("Sent %d departure reminder(s).\n", sent)
	}
}
