/*
Copyright 2024 The Spotalis Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package webhook

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// reloadDelay lets writers finish replacing both files before they are read
const reloadDelay = 100 * time.Millisecond

// CertificateWatcher serves the current serving certificate and reloads it
// when the certificate or key file changes on disk.
type CertificateWatcher struct {
	certPath string
	keyPath  string
	onReload func(tls.Certificate)
	logger   logr.Logger
	watcher  *fsnotify.Watcher
	started  chan struct{}

	mu      sync.RWMutex
	current *tls.Certificate
}

// NewCertificateWatcher creates a new certificate watcher
func NewCertificateWatcher(certPath, keyPath string, onReload func(tls.Certificate)) *CertificateWatcher {
	return &CertificateWatcher{
		certPath: certPath,
		keyPath:  keyPath,
		onReload: onReload,
		logger:   logr.Discard(),
		started:  make(chan struct{}),
	}
}

// WithLogger sets the logger used for reload events
func (cw *CertificateWatcher) WithLogger(logger logr.Logger) *CertificateWatcher {
	cw.logger = logger.WithName("cert-watcher")
	return cw
}

// Load reads the key pair from disk and makes it the served certificate
func (cw *CertificateWatcher) Load() error {
	cert, err := tls.LoadX509KeyPair(cw.certPath, cw.keyPath)
	if err != nil {
		return fmt.Errorf("failed to load key pair %s/%s: %w", cw.certPath, cw.keyPath, err)
	}

	cw.mu.Lock()
	cw.current = &cert
	cw.mu.Unlock()

	if cw.onReload != nil {
		cw.onReload(cert)
	}
	return nil
}

// GetCertificate returns the served certificate; it is meant for tls.Config.GetCertificate
func (cw *CertificateWatcher) GetCertificate(_ *tls.ClientHelloInfo) (*tls.Certificate, error) {
	cw.mu.RLock()
	defer cw.mu.RUnlock()

	if cw.current == nil {
		return nil, errors.New("no serving certificate loaded")
	}
	return cw.current, nil
}

// Start watches the certificate directory until ctx is cancelled
func (cw *CertificateWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	cw.watcher = watcher

	// Mounted secrets are swapped through symlinks, so watch the directories
	// rather than the files themselves.
	dirs := map[string]struct{}{
		filepath.Dir(cw.certPath): {},
		filepath.Dir(cw.keyPath):  {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return err
		}
	}

	close(cw.started)
	cw.logger.Info("Started certificate watcher", "cert-path", cw.certPath, "key-path", cw.keyPath)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !cw.isRelevant(event) {
				continue
			}

			cw.logger.Info("Certificate file changed, reloading", "file", event.Name, "op", event.Op.String())
			time.Sleep(reloadDelay)
			if err := cw.Load(); err != nil {
				cw.logger.Error(err, "Failed to reload certificate, keeping the previous one")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cw.logger.Error(err, "Certificate watcher error")

		case <-ctx.Done():
			return watcher.Close()
		}
	}
}

// Started is closed once the watcher is receiving file events
func (cw *CertificateWatcher) Started() <-chan struct{} {
	return cw.started
}

func (cw *CertificateWatcher) isRelevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}

	name := filepath.Base(event.Name)
	// ..data is the symlink kubelet swaps when a secret volume is updated
	return event.Name == cw.certPath || event.Name == cw.keyPath || name == "..data"
}
