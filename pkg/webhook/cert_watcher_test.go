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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CertificateWatcher", func() {
	var (
		ctx         context.Context
		cancel      context.CancelFunc
		tempDir     string
		certPath    string
		keyPath     string
		watcher     *CertificateWatcher
		reloadCount atomic.Int32
	)

	reloadCallback := func(tls.Certificate) {
		reloadCount.Add(1)
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		reloadCount.Store(0)

		tempDir = GinkgoT().TempDir()
		certPath = filepath.Join(tempDir, "tls.crt")
		keyPath = filepath.Join(tempDir, "tls.key")

		Expect(writeTestCertificate(certPath, keyPath, "first.podinjector.svc")).To(Succeed())
	})

	AfterEach(func() {
		cancel()
	})

	Describe("NewCertificateWatcher", func() {
		It("should create a watcher that has not loaded anything", func() {
			watcher = NewCertificateWatcher(certPath, keyPath, reloadCallback)

			Expect(watcher.certPath).To(Equal(certPath))
			Expect(watcher.keyPath).To(Equal(keyPath))
			Expect(watcher.watcher).To(BeNil())

			_, err := watcher.GetCertificate(nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Load", func() {
		It("should serve the loaded certificate", func() {
			watcher = NewCertificateWatcher(certPath, keyPath, reloadCallback)
			Expect(watcher.Load()).To(Succeed())

			cert, err := watcher.GetCertificate(&tls.ClientHelloInfo{})
			Expect(err).NotTo(HaveOccurred())
			Expect(leafCommonName(cert)).To(Equal("first.podinjector.svc"))
			Expect(reloadCount.Load()).To(Equal(int32(1)))
		})

		It("should fail for missing files", func() {
			Expect(os.Remove(certPath)).To(Succeed())

			watcher = NewCertificateWatcher(certPath, keyPath, reloadCallback)
			Expect(watcher.Load()).NotTo(Succeed())
			Expect(reloadCount.Load()).To(BeZero())
		})

		It("should fail for invalid certificate content", func() {
			Expect(os.WriteFile(certPath, []byte("invalid cert"), 0o600)).To(Succeed())

			watcher = NewCertificateWatcher(certPath, keyPath, nil)
			Expect(watcher.Load()).NotTo(Succeed())
		})
	})

	Describe("Start", func() {
		BeforeEach(func() {
			watcher = NewCertificateWatcher(certPath, keyPath, reloadCallback).WithLogger(GinkgoLogr)
			Expect(watcher.Load()).To(Succeed())
		})

		It("should reload the certificate when the files change", func() {
			done := make(chan error, 1)
			go func() {
				done <- watcher.Start(ctx)
			}()

			Eventually(watcher.Started()).Should(BeClosed())

			Expect(writeTestCertificate(certPath, keyPath, "second.podinjector.svc")).To(Succeed())

			Eventually(func() string {
				cert, err := watcher.GetCertificate(nil)
				if err != nil {
					return ""
				}
				return leafCommonName(cert)
			}, 5*time.Second, 50*time.Millisecond).Should(Equal("second.podinjector.svc"))

			cancel()
			Eventually(done, 2*time.Second).Should(Receive(BeNil()))
		})

		It("should keep the previous certificate when the new one is invalid", func() {
			done := make(chan error, 1)
			go func() {
				done <- watcher.Start(ctx)
			}()

			Eventually(watcher.Started()).Should(BeClosed())
			Expect(os.WriteFile(certPath, []byte("garbage"), 0o600)).To(Succeed())

			Consistently(func() string {
				cert, err := watcher.GetCertificate(nil)
				Expect(err).NotTo(HaveOccurred())
				return leafCommonName(cert)
			}, 500*time.Millisecond, 50*time.Millisecond).Should(Equal("first.podinjector.svc"))

			cancel()
			Eventually(done, 2*time.Second).Should(Receive(BeNil()))
		})

		It("should return an error for a missing directory", func() {
			missing := filepath.Join(tempDir, "missing", "tls.crt")
			watcher = NewCertificateWatcher(missing, keyPath, reloadCallback)

			Expect(watcher.Start(ctx)).NotTo(Succeed())
		})

		It("should exit when the context is already cancelled", func() {
			cancel()
			Expect(watcher.Start(ctx)).To(Succeed())
		})
	})
})

// writeTestCertificate writes a self-signed key pair for commonName
func writeTestCertificate(certPath, keyPath, commonName string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     []string{commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return err
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}

	// Write the key first so a reload triggered by the certificate sees a matching pair
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		return err
	}
	return os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600)
}

func leafCommonName(cert *tls.Certificate) string {
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return ""
	}
	return leaf.Subject.CommonName
}
