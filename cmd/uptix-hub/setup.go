package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/uptix/hub/internal/server"
)

type setupAnswers struct {
	AdminPassword string
	AgentPassword string
	TLSMode       string
	Domain        string
	CertFile      string
	KeyFile       string
	ListenAddr    string
}

func runSetup(cfg *server.Config, configPath string) error {
	fmt.Println()
	fmt.Println("  ╔══════════════════════════════════════╗")
	fmt.Println("  ║           Uptix Hub Setup            ║")
	fmt.Println("  ╚══════════════════════════════════════╝")
	fmt.Println()

	a := setupAnswers{
		TLSMode:    cfg.TLSMode,
		Domain:     cfg.Domain,
		CertFile:   cfg.CertFile,
		KeyFile:    cfg.KeyFile,
		ListenAddr: cfg.ListenAddr,
	}
	if a.TLSMode == "" {
		a.TLSMode = "none"
	}

	adminDesc := "Used to log in to the dashboard and API"
	if cfg.AdminPasswordHash != "" {
		adminDesc = "Leave empty to keep the current password"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Admin Password").
				Description(adminDesc).
				EchoMode(huh.EchoModePassword).
				Value(&a.AdminPassword),
			huh.NewInput().
				Title("Agent Password").
				Description("Shared secret agents send with reports. Leave empty to accept unauthenticated agents").
				EchoMode(huh.EchoModePassword).
				Value(&a.AgentPassword),
			huh.NewSelect[string]().
				Title("TLS mode").
				Options(
					huh.NewOption("None (HTTP only, behind a reverse proxy)", "none"),
					huh.NewOption("Let's Encrypt automatic HTTPS", "autocert"),
					huh.NewOption("Existing certificate and key files", "manual"),
				).
				Value(&a.TLSMode),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	var follow *huh.Form
	switch a.TLSMode {
	case "autocert":
		follow = huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Domain").
				Description("Public hostname for the HTTPS certificate").
				Placeholder("hub.example.com").
				Value(&a.Domain),
		))
	case "manual":
		follow = huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Certificate file").
				Placeholder("/etc/uptix/hub.crt").
				Value(&a.CertFile),
			huh.NewInput().
				Title("Key file").
				Placeholder("/etc/uptix/hub.key").
				Value(&a.KeyFile),
			huh.NewInput().
				Title("Listen address").
				Placeholder(":443").
				Value(&a.ListenAddr),
		))
	default:
		follow = huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Placeholder(":8080").
				Value(&a.ListenAddr),
		))
	}
	if err := follow.Run(); err != nil {
		return err
	}

	if err := applySetup(cfg, a); err != nil {
		return err
	}
	if err := server.SaveServerConfig(cfg, configPath); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Println()
	fmt.Printf("  Config saved to %s\n", configPath)
	return nil
}

// applySetup folds the wizard answers into cfg. Empty passwords keep the
// existing hashes; a fresh install must set an admin password.
func applySetup(cfg *server.Config, a setupAnswers) error {
	if a.AdminPassword == "" {
		if cfg.AdminPasswordHash == "" {
			return fmt.Errorf("admin password is required")
		}
	} else {
		hash, err := server.HashPassword(a.AdminPassword)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		cfg.AdminPasswordHash = hash
	}

	if a.AgentPassword != "" {
		hash, err := server.HashPassword(a.AgentPassword)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		cfg.AgentPasswordHash = hash
	}

	switch a.TLSMode {
	case "autocert":
		domain := strings.TrimSpace(a.Domain)
		if domain == "" {
			return fmt.Errorf("domain is required for autocert")
		}
		cfg.TLSMode = "autocert"
		cfg.Domain = domain
		cfg.ListenAddr = ":443"
	case "manual":
		cert, key := strings.TrimSpace(a.CertFile), strings.TrimSpace(a.KeyFile)
		if cert == "" || key == "" {
			return fmt.Errorf("certificate and key files are required for manual TLS")
		}
		cfg.TLSMode = "manual"
		cfg.CertFile = cert
		cfg.KeyFile = key
		if addr := strings.TrimSpace(a.ListenAddr); addr != "" {
			cfg.ListenAddr = addr
		}
	case "none", "":
		cfg.TLSMode = "none"
		if addr := strings.TrimSpace(a.ListenAddr); addr != "" {
			cfg.ListenAddr = addr
		}
	default:
		return fmt.Errorf("unknown tls mode %q", a.TLSMode)
	}
	return nil
}
