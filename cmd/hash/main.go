// Package main is a utility for generating bcrypt hashes of tenant admin
// passwords. The registry stores only bcrypt hashes — never the raw password —
// so this tool is used when manually seeding or repairing tenant records in
// the master database without running the full server.
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <password> [cost]\n", os.Args[0])
		os.Exit(1)
	}

	cost := 12
	if len(os.Args) > 2 {
		if _, err := fmt.Sscanf(os.Args[2], "%d", &cost); err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			fmt.Fprintf(os.Stderr, "invalid cost %q (must be %d-%d)\n", os.Args[2], bcrypt.MinCost, bcrypt.MaxCost)
			os.Exit(1)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[1]), cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}
