package realtime

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPSignaler_Negotiate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.URL.Query().Get("model"); got != "test-model" {
			t.Errorf("model = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/sdp" {
			t.Errorf("Content-Type = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ek_123" {
			t.Errorf("Authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "v=0 offer" {
			t.Errorf("offer = %q", body)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "v=0 answer")
	}))
	defer srv.Close()

	s := NewHTTPSignaler(srv.URL, "test-model", nil, nil)
	answer, err := s.Negotiate(context.Background(), "v=0 offer", "ek_123")
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if answer != "v=0 answer" {
		t.Errorf("answer = %q", answer)
	}
}

func TestHTTPSignaler_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPSignaler(srv.URL, "m", nil, nil).Negotiate(context.Background(), "offer", "tok")

	var se *SignalingError
	if !errors.As(err, &se) {
		t.Fatalf("expected SignalingError, got %v", err)
	}
	if se.StatusCode != 500 || se.Status != "500 Internal Server Error" {
		t.Errorf("status = %d %q", se.StatusCode, se.Status)
	}
	if se.Body != "upstream broke" {
		t.Errorf("body = %q", se.Body)
	}
	if !IsFatal(err) {
		t.Error("signaling errors are fatal")
	}
}

func TestHTTPSignaler_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewHTTPSignaler(srv.URL, "m", nil, nil).Negotiate(context.Background(), "offer", "tok")
	var se *SignalingError
	if !errors.As(err, &se) || se.StatusCode != 0 || se.Cause == nil {
		t.Fatalf("expected transport SignalingError, got %#v", err)
	}
}

func TestHTTPSignaler_ContextCanceled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTPSignaler(srv.URL, "m", nil, nil).Negotiate(ctx, "offer", "tok")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHTTPCredentials(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{"ok", 200, `{"success":true,"data":{"voiceToken":"ek_abc"}}`, "ek_abc", false},
		{"failure flag", 200, `{"success":false,"message":"quota"}`, "", true},
		{"missing token", 200, `{"success":true,"data":{}}`, "", true},
		{"no data", 200, `{"success":true}`, "", true},
		{"http error", 502, `bad gateway`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			got, err := NewHTTPCredentials(srv.URL, nil, nil).Token(context.Background())
			if tt.wantErr {
				var ce *CredentialError
				if !errors.As(err, &ce) {
					t.Fatalf("expected CredentialError, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("Token = %q, %v", got, err)
			}
		})
	}
}

func TestStaticCredential(t *testing.T) {
	if tok, err := StaticCredential("x").Token(context.Background()); tok != "x" || err != nil {
		t.Errorf("Token = %q, %v", tok, err)
	}
	if _, err := StaticCredential("").Token(context.Background()); err == nil {
		t.Error("empty credential should fail")
	}
}
