// Package main is a development utility that generates a widget API key with
// its bcrypt hash and display prefix pre-computed, plus a ready-to-run SQL
// INSERT so developers can seed a usable key in a local database without going
// through the admin API. Keys for real deployments should be created via
// POST /api/admin/api-keys so the creation is audited.
package main

import (
	"fmt"
	"log"

	"github.com/testimonial-hub/testimonials-backend/internal/auth"
)

func main() {
	key, hash, displayPrefix, err := auth.GenerateAPIKey("twk_")
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	fmt.Println("Generated widget API key (development only):")
	fmt.Println()
	fmt.Printf("  Key:    %s\n", key)
	fmt.Printf("  Prefix: %s\n", displayPrefix)
	fmt.Printf("  Hash:   %s\n", hash)
	fmt.Println()
	fmt.Println("Seed it with:")
	fmt.Println()
	fmt.Printf("  INSERT INTO api_keys (name, key_hash, key_prefix, rate_limit_per_hour, is_active)\n")
	fmt.Printf("  VALUES ('dev key', '%s', '%s', 1000, TRUE);\n", hash, displayPrefix)
}
