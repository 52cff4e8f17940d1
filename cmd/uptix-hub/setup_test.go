package main

import (
	"testing"

	"github.com/uptix/hub/internal/server"
	"golang.org/x/crypto/bcrypt"
)

func TestApplySetupFreshInstall(t *testing.T) {
	cfg := server.DefaultServerConfig()
	err := applySetup(cfg, setupAnswers{
		AdminPassword: "admin-secret",
		AgentPassword: "agent-secret",
		TLSMode:       "none",
		ListenAddr:    " :9090 ",
	})
	if err != nil {
		t.Fatalf("applySetup: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(cfg.AdminPasswordHash), []byte("admin-secret")) != nil {
		t.Fatal("admin hash does not match")
	}
	if bcrypt.CompareHashAndPassword([]byte(cfg.AgentPasswordHash), []byte("agent-secret")) != nil {
		t.Fatal("agent hash does not match")
	}
	if cfg.TLSMode != "none" || cfg.ListenAddr != ":9090" {
		t.Fatalf("unexpected listener config: %q %q", cfg.TLSMode, cfg.ListenAddr)
	}
}

func TestApplySetupRequiresAdminPassword(t *testing.T) {
	cfg := server.DefaultServerConfig()
	cfg.AdminPasswordHash = ""
	if err := applySetup(cfg, setupAnswers{TLSMode: "none"}); err == nil {
		t.Fatal("expected error without admin password")
	}
}

func TestApplySetupKeepsExistingHashes(t *testing.T) {
	cfg := server.DefaultServerConfig()
	cfg.AdminPasswordHash = "existing-admin"
	cfg.AgentPasswordHash = "existing-agent"
	addr := cfg.ListenAddr

	if err := applySetup(cfg, setupAnswers{TLSMode: "none"}); err != nil {
		t.Fatalf("applySetup: %v", err)
	}
	if cfg.AdminPasswordHash != "existing-admin" || cfg.AgentPasswordHash != "existing-agent" {
		t.Fatal("empty answers should keep existing hashes")
	}
	if cfg.ListenAddr != addr {
		t.Fatalf("listen addr changed to %q", cfg.ListenAddr)
	}
}

func TestApplySetupAutocert(t *testing.T) {
	cfg := server.DefaultServerConfig()
	cfg.AdminPasswordHash = "existing-admin"

	if err := applySetup(cfg, setupAnswers{TLSMode: "autocert"}); err == nil {
		t.Fatal("expected error without domain")
	}

	if err := applySetup(cfg, setupAnswers{TLSMode: "autocert", Domain: "hub.example.com"}); err != nil {
		t.Fatalf("applySetup: %v", err)
	}
	if cfg.TLSMode != "autocert" || cfg.Domain != "hub.example.com" || cfg.ListenAddr != ":443" {
		t.Fatalf("unexpected autocert config: %q %q %q", cfg.TLSMode, cfg.Domain, cfg.ListenAddr)
	}
}

func TestApplySetupManualCert(t *testing.T) {
	cfg := server.DefaultServerConfig()
	cfg.AdminPasswordHash = "existing-admin"

	if err := applySetup(cfg, setupAnswers{TLSMode: "manual", CertFile: "/tmp/hub.crt"}); err == nil {
		t.Fatal("expected error without key file")
	}
	if err := applySetup(cfg, setupAnswers{TLSMode: "manual", CertFile: "/tmp/hub.crt", KeyFile: "/tmp/hub.key", ListenAddr: ":8443"}); err != nil {
		t.Fatalf("applySetup: %v", err)
	}
	if cfg.TLSMode != "manual" || cfg.CertFile != "/tmp/hub.crt" || cfg.KeyFile != "/tmp/hub.key" || cfg.ListenAddr != ":8443" {
		t.Fatalf("unexpected manual config: %+v", cfg)
	}
}

func TestApplySetupRejectsUnknownTLSMode(t *testing.T) {
	cfg := server.DefaultServerConfig()
	cfg.AdminPasswordHash = "existing-admin"
	if err := applySetup(cfg, setupAnswers{TLSMode: "selfsigned"}); err == nil {
		t.Fatal("expected error for unknown tls mode")
	}
}
