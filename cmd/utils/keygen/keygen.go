package main

import (
	"errors"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"

	"ant-bootstrap/internal/keys"
	"ant-bootstrap/internal/logger"
)

type options struct {
	Private string `long:"private" description:"existing base64 private key to derive the public key and peer ID from"`
}

func main() {
	// Only log errors for utilities
	_ = logger.Init(logger.Config{
		ConsoleOutput: true,
		Level:         "error",
	})

	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	keyManager := keys.NewKeyManager()

	privateKey := opts.Private
	if privateKey == "" {
		var err error
		privateKey, err = keyManager.GeneratePrivateKey()
		if err != nil {
			logger.Error("Error generating private key", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Private Key: %s\n", privateKey)
	}

	publicKey, err := keyManager.GetPublicKey(privateKey)
	if err != nil {
		logger.Error("Error getting public key", "error", err)
		os.Exit(1)
	}

	peerID, err := keyManager.PeerID(privateKey)
	if err != nil {
		logger.Error("Error deriving peer ID", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Public Key:  %s\n", publicKey)
	fmt.Printf("Peer ID:     %s\n", peerID)
}
