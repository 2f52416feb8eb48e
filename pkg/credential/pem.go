package credential

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// PEM encoding/decoding errors.
var (
	ErrInvalidPEM = errors.New("invalid PEM data")
	ErrInvalidKey = errors.New("invalid private key")
)

// EncodeCertPEM encodes an X.509 certificate to PEM format.
func EncodeCertPEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Raw,
	})
}

// DecodeCertPEM decodes the first PEM-encoded X.509 certificate in data.
func DecodeCertPEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, ErrInvalidPEM
	}
	return x509.ParseCertificate(block.Bytes)
}

// EncodeKeyPEM encodes any supported private key as PKCS#8 PEM.
func EncodeKeyPEM(key any) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	}), nil
}

// X509FromPEMFiles reads a certificate and key pair from PEM files and
// returns an X.509 credential for deviceID.
func X509FromPEMFiles(deviceID, certPath, keyPath string) (Credential, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return Credential{}, fmt.Errorf("read certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return Credential{}, fmt.Errorf("read private key: %w", err)
	}
	if _, err := DecodeCertPEM(certPEM); err != nil {
		return Credential{}, fmt.Errorf("certificate %s: %w", certPath, err)
	}
	return New(Params{
		DeviceID:        deviceID,
		X509Certificate: string(certPEM),
		X509PrivateKey:  string(keyPEM),
	})
}

// X509FromPKCS12 decodes a PKCS#12 bundle holding one certificate and its key
// and returns an X.509 credential for deviceID.
func X509FromPKCS12(deviceID string, pfx []byte, password string) (Credential, error) {
	key, cert, err := pkcs12.Decode(pfx, password)
	if err != nil {
		return Credential{}, fmt.Errorf("decode PKCS#12: %w", err)
	}
	keyPEM, err := EncodeKeyPEM(key)
	if err != nil {
		return Credential{}, err
	}
	return New(Params{
		DeviceID:        deviceID,
		X509Certificate: string(EncodeCertPEM(cert)),
		X509PrivateKey:  string(keyPEM),
	})
}
