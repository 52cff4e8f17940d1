package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/uptix/hub/internal/models"
)

func TestWebhookSenderPostsJSON(t *testing.T) {
	var got models.Notification
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := &WebhookSender{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer x"}}
	if err := w.Send(context.Background(), models.Notification{Subject: "hello", HostName: "web-1"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Subject != "hello" || got.HostName != "web-1" || auth != "Bearer x" {
		t.Fatalf("unexpected request: %+v auth=%q", got, auth)
	}
}

func TestWebhookSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	w := &WebhookSender{URL: srv.URL}
	if err := w.Send(context.Background(), models.Notification{}); err == nil {
		t.Fatal("expected error on 5xx response")
	}
}

func TestNewSenderValidates(t *testing.T) {
	if _, err := NewSender(TransportWebhook, SMTPSender{}, WebhookSender{URL: "ftp://x"}, testLogger()); err == nil {
		t.Fatal("expected invalid webhook url to be rejected")
	}
	if _, err := NewSender(TransportSMTP, SMTPSender{Host: "mail"}, WebhookSender{}, testLogger()); err == nil {
		t.Fatal("expected incomplete smtp config to be rejected")
	}
	if _, err := NewSender("pigeon", SMTPSender{}, WebhookSender{}, testLogger()); err == nil {
		t.Fatal("expected unknown transport to be rejected")
	}
	s, err := NewSender("", SMTPSender{}, WebhookSender{}, testLogger())
	if err != nil || s.Name() != TransportNone {
		t.Fatalf("expected log transport by default, got %v %v", s, err)
	}
}
