package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/seteams/hubcore/internal/app"
	"github.com/seteams/hubcore/internal/config"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func promptPassphrase() ([]byte, error) {
	fmt.Print("Keystore passphrase: ")
	passphrase, err := readPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, err
	}
	return passphrase, nil
}

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	passphrase, err := promptPassphrase()
	if err != nil {
		log.Fatalf("%v", err)
	}

	a, err := app.NewApp(ctx, cfg, passphrase)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
