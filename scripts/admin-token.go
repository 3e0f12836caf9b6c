package main

import (
	"fmt"
	"os"

	"github.com/saunafleet/fleet-server/internal/util"
)

// Prints a fresh admin token and the ADMIN_TOKEN_SHA256 value to configure for it.
func main() {
	token := ""
	if len(os.Args) > 1 {
		token = os.Args[1]
	} else {
		var err error
		token, err = util.GenerateToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("token:              %s\n", token)
	fmt.Printf("ADMIN_TOKEN_SHA256: %s\n", util.HashToken(token))
}
