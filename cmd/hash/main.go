// Command hash generates a bcrypt hash for an admin password, for seeding
// users directly in SQL or rotating a password outside the API.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/testimonial-hub/testimonials-backend/internal/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <password>\n", os.Args[0])
		os.Exit(1)
	}

	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	fmt.Println(hash)
}
