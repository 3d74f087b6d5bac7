package main

import (
	"log"

	"eragonauth/cmd/internal/passphrase"
	"eragonauth/services/signerd"
)

func main() {
	source := passphrase.NewSource(passphrase.DefaultEnv)
	if err := signerd.Main(source.Get); err != nil {
		log.Fatalf("signerd: %v", err)
	}
}
