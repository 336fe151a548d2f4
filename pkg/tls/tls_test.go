// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSelfSigned(t *testing.T) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "rabbit.local"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func TestLoadClientConfig(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t)

	cfg, err := LoadClientConfig(Config{})
	require.NoError(t, err)
	assert.Nil(t, cfg.RootCAs)
	assert.Empty(t, cfg.Certificates)
	assert.Equal(t, "TLS", SecurityStatus(cfg))

	cfg, err = LoadClientConfig(Config{
		CertFile:     certFile,
		KeyFile:      keyFile,
		ServerCAFile: certFile,
		ServerName:   "rabbit.local",
	})
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)
	assert.Len(t, cfg.Certificates, 1)
	assert.Equal(t, "rabbit.local", cfg.ServerName)
	assert.Equal(t, "TLS with client certificate", SecurityStatus(cfg))
}

func TestLoadClientConfig_Errors(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t)

	_, err := LoadClientConfig(Config{CertFile: certFile})
	assert.ErrorIs(t, err, errKeyPair)

	_, err = LoadClientConfig(Config{CertFile: keyFile, KeyFile: certFile})
	assert.ErrorIs(t, err, errLoadCerts)

	_, err = LoadClientConfig(Config{ServerCAFile: filepath.Join(t.TempDir(), "missing.pem")})
	assert.ErrorIs(t, err, errLoadServerCA)

	_, err = LoadClientConfig(Config{ServerCAFile: keyFile})
	assert.ErrorIs(t, err, errAppendCA)
}

func TestSecurityStatus(t *testing.T) {
	assert.Equal(t, "no TLS", SecurityStatus(nil))
}
