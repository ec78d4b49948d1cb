package keypair

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

var (
	ErrNoPEMBlock     = errors.New("no PEM block found in private key")
	ErrEncryptedKey   = errors.New("encrypted private keys are not supported")
	ErrUnsupportedKey = errors.New("unsupported private key")
)

// DerivePublicKey returns the PEM encoded SubjectPublicKeyInfo of an RSA
// private key given as PKCS#1 or PKCS#8 PEM.
func DerivePublicKey(privateKeyPEM []byte) (string, error) {
	privateKey, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}

	der, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: der,
	})), nil
}

func parsePrivateKey(privateKeyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	if _, found := block.Headers["DEK-Info"]; found || block.Type == "ENCRYPTED PRIVATE KEY" {
		return nil, ErrEncryptedKey
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#1 private key: %w", err)
		}

		return privateKey, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 private key: %w", err)
		}

		privateKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not an RSA key", ErrUnsupportedKey, key)
		}

		return privateKey, nil
	default:
		return nil, fmt.Errorf("%w: PEM block type '%s'", ErrUnsupportedKey, block.Type)
	}
}
