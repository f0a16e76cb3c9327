// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// credentials serves the server certificate and optionally reloads it when
// the underlying files change.
type credentials struct {
	certFile string
	keyFile  string

	mutex sync.RWMutex
	cert  *tls.Certificate

	watcher *fsnotify.Watcher
	done    chan struct{}
}

func loadCredentials(certFile, keyFile string) (*credentials, error) {
	creds := &credentials{
		certFile: certFile,
		keyFile:  keyFile,
	}
	if err := creds.reload(); err != nil {
		return nil, &CredentialLoadError{CertFile: certFile, KeyFile: keyFile, Cause: err}
	}
	return creds, nil
}

func (creds *credentials) reload() error {
	cert, err := tls.LoadX509KeyPair(creds.certFile, creds.keyFile)
	if err != nil {
		return err
	}

	creds.mutex.Lock()
	creds.cert = &cert
	creds.mutex.Unlock()
	return nil
}

func (creds *credentials) getCertificate(_ *tls.ClientHelloInfo) (*tls.Certificate, error) {
	creds.mutex.RLock()
	defer creds.mutex.RUnlock()

	return creds.cert, nil
}

// tlsConfig for a listener negotiating the given ALPN. Session tickets stay
// enabled for resumption.
func (creds *credentials) tlsConfig(alpn string) *tls.Config {
	return &tls.Config{
		GetCertificate: creds.getCertificate,
		NextProtos:     []string{alpn},
		MinVersion:     tls.VersionTLS13,
	}
}

// watch the credential files' directories and reload on changes. Directories
// are watched, since certificates are often replaced by renaming.
func (creds *credentials) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dirs := map[string]struct{}{
		filepath.Dir(creds.certFile): {},
		filepath.Dir(creds.keyFile):  {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return err
		}
	}

	creds.watcher = watcher
	creds.done = make(chan struct{})
	go creds.watchLoop()

	return nil
}

func (creds *credentials) watchLoop() {
	defer close(creds.done)

	certName := filepath.Clean(creds.certFile)
	keyName := filepath.Clean(creds.keyFile)

	for {
		select {
		case event, ok := <-creds.watcher.Events:
			if !ok {
				return
			}

			name := filepath.Clean(event.Name)
			if name != certName && name != keyName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if err := creds.reload(); err != nil {
				// A half-written pair is expected while both files get replaced.
				log.WithFields(log.Fields{
					"file":  event.Name,
					"error": err,
				}).Debug("Reloading credentials failed, keeping the previous ones")
			} else {
				log.WithField("file", event.Name).Info("Reloaded credentials")
			}

		case err, ok := <-creds.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("Credential watcher errored")
		}
	}
}

// Close stops watching the files, if this was started.
func (creds *credentials) Close() error {
	if creds.watcher == nil {
		return nil
	}

	err := creds.watcher.Close()
	<-creds.done
	creds.watcher = nil
	return err
}

// WriteSelfSignedCredentials generates a self-signed certificate for the
// given hosts and writes it, together with its key, as PEM files. Dialers
// will have to skip the verification or trust this certificate explicitly.
func WriteSelfSignedCredentials(certFile, keyFile string, hosts ...string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return err
	}

	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: ALPN},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return err
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		return err
	}
	return os.WriteFile(certFile, certPEM, 0644)
}
