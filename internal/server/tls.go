package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/crypto/acme/autocert"
)

// ListenAndServeTLS serves the hub according to cfg.TLSMode. Mode "none"
// serves plain HTTP for deployments behind a terminating proxy.
func (s *Server) ListenAndServeTLS() error {
	switch s.cfg.TLSMode {
	case "autocert":
		return s.serveAutocert()
	case "manual":
		return s.serveCertFiles()
	default:
		return s.ListenAndServe()
	}
}

// serveAutocert obtains certificates for cfg.Domain from Let's Encrypt.
// Port 80 answers HTTP-01 challenges and redirects agents and browsers
// that still use http:// to the HTTPS listener.
func (s *Server) serveAutocert() error {
	if s.cfg.Domain == "" {
		return fmt.Errorf("tls_mode autocert: domain is not set")
	}
	if err := os.MkdirAll(s.cfg.CertCacheDir, 0700); err != nil {
		return fmt.Errorf("create cert cache dir: %w", err)
	}

	m := &autocert.Manager{
		Cache:      autocert.DirCache(s.cfg.CertCacheDir),
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(s.cfg.Domain),
	}

	challenge := &http.Server{
		Addr:              ":80",
		Handler:           m.HTTPHandler(nil),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.challengeServer = challenge
	s.mu.Unlock()
	go func() {
		s.logger.Info("acme challenge listener up", "addr", challenge.Addr, "domain", s.cfg.Domain)
		if err := challenge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("acme challenge listener stopped, certificate renewal will fail", "err", err)
		}
	}()

	tlsCfg := m.TLSConfig()
	tlsCfg.MinVersion = tls.VersionTLS12
	s.httpServer.TLSConfig = tlsCfg
	s.logger.Info("hub listening", "addr", s.cfg.ListenAddr, "tls", "autocert", "domain", s.cfg.Domain)
	return s.httpServer.ListenAndServeTLS("", "")
}

// serveCertFiles loads cert_file and key_file up front so a bad pair fails
// at startup rather than on the first agent handshake.
func (s *Server) serveCertFiles() error {
	if s.cfg.CertFile == "" || s.cfg.KeyFile == "" {
		return fmt.Errorf("tls_mode manual: cert_file and key_file must both be set")
	}
	cert, err := tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("load tls key pair: %w", err)
	}

	s.httpServer.TLSConfig = &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}
	s.logger.Info("hub listening", "addr", s.cfg.ListenAddr, "tls", "manual", "cert", s.cfg.CertFile)
	return s.httpServer.ListenAndServeTLS("", "")
}
