package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/smarttransit/rail-reservation/internal/utils"
)

func main() {
	var password string
	var cost int
	flag.StringVar(&password, "password", "", "Bootstrap admin password to hash (optional)")
	flag.IntVar(&cost, "cost", 12, "bcrypt cost, should match BCRYPT_COST")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("Secret Generator for Rail Reservation")
	fmt.Println("===========================================")
	fmt.Println()

	secret, err := utils.GenerateJWTSecret()
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	fmt.Println("✅ Secrets generated successfully!")
	fmt.Println()
	fmt.Println("Add these to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secret)

	if password != "" {
		hash, err := utils.HashPassword(password, cost)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Printf("BOOTSTRAP_ADMIN_PASSWORD_HASH=%s\n", hash)
	}

	fmt.Println()
	fmt.Println("⚠️  IMPORTANT: Keep these secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}
