package ttn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestValidateWindow(t *testing.T) {
	tests := []struct {
		name    string
		last    time.Duration
		wantErr bool
	}{
		{name: "minimum", last: 1 * time.Hour},
		{name: "maximum", last: 48 * time.Hour},
		{name: "typical", last: 24 * time.Hour},
		{name: "too short", last: 30 * time.Minute, wantErr: true},
		{name: "too long", last: 49 * time.Hour, wantErr: true},
		{name: "not whole hours", last: 90 * time.Minute, wantErr: true},
		{name: "zero", last: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWindow(tt.last)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateWindow(%s) = nil, want error", tt.last)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateWindow(%s) = %v, want nil", tt.last, err)
			}
		})
	}
}

func TestFetchUplinks(t *testing.T) {
	body := `{"result":{"end_device_ids":{"device_id":"dev1"}}}` + "\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/as/applications/my-app/packages/storage/uplink_message" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("last"); got != "24h" {
			t.Errorf("last = %q, want 24h", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-key", 5*time.Second)
	data, err := client.FetchUplinks(context.Background(), "my-app", 24*time.Hour)
	if err != nil {
		t.Fatalf("FetchUplinks() error = %v", err)
	}
	if string(data) != body {
		t.Errorf("FetchUplinks() = %q, want %q", data, body)
	}
}

func TestFetchUplinks_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"unauthenticated"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := New(srv.URL, "bad-key", 5*time.Second)
	_, err := client.FetchUplinks(context.Background(), "my-app", 24*time.Hour)
	if err == nil {
		t.Fatal("FetchUplinks() = nil, want error")
	}
}

func TestFetchUplinks_ValidatesBeforeNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := New(srv.URL, "key", 5*time.Second)

	if _, err := client.FetchUplinks(context.Background(), "my-app", 72*time.Hour); err == nil {
		t.Error("out-of-range window accepted")
	}
	if _, err := client.FetchUplinks(context.Background(), "", 24*time.Hour); err == nil {
		t.Error("empty application id accepted")
	}
	if called {
		t.Error("network call made for invalid input")
	}
}
