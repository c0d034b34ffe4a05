// Package identity manages the daemon's ED25519 host keypair for the SSH
// console.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// Identity holds the host keypair and its SSH signer.
type Identity struct {
	PrivateKey  ed25519.PrivateKey
	PublicKey   ed25519.PublicKey
	Fingerprint string // SHA256 fingerprint of the host key
	HostKey     ssh.Signer
}

// Load reads the host keypair from dataDir/identity/. If the key files
// don't exist yet, a new keypair is generated and persisted.
func Load(dataDir string) (*Identity, error) {
	keyDir := filepath.Join(dataDir, "identity")
	privPath := filepath.Join(keyDir, "host.key")
	pubPath := filepath.Join(keyDir, "host.pub")

	privPEM, err := os.ReadFile(privPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading host key: %w", err)
		}
		return generate(keyDir, privPath, pubPath)
	}

	return loadFrom(privPEM)
}

func generate(keyDir, privPath, pubPath string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}

	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return nil, fmt.Errorf("creating identity dir: %w", err)
	}

	pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshaling host key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: pkcs8,
	})
	if err := os.WriteFile(privPath, privPEM, 0600); err != nil {
		return nil, fmt.Errorf("writing host key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("converting public key: %w", err)
	}
	if err := os.WriteFile(pubPath, ssh.MarshalAuthorizedKey(sshPub), 0644); err != nil {
		return nil, fmt.Errorf("writing public key: %w", err)
	}

	return fromKeyPair(priv, pub)
}

func loadFrom(privPEM []byte) (*Identity, error) {
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in host key")
	}

	rawKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing host key: %w", err)
	}

	priv, ok := rawKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("host key is not ED25519")
	}

	return fromKeyPair(priv, priv.Public().(ed25519.PublicKey))
}

func fromKeyPair(priv ed25519.PrivateKey, pub ed25519.PublicKey) (*Identity, error) {
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("creating SSH signer: %w", err)
	}

	return &Identity{
		PrivateKey:  priv,
		PublicKey:   pub,
		Fingerprint: ssh.FingerprintSHA256(signer.PublicKey()),
		HostKey:     signer,
	}, nil
}
