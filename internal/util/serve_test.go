package util

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestServeUntilDoneStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- ServeUntilDone(ctx, srv, time.Second) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("err = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop after cancel")
	}
}

func TestServeUntilDoneReportsListenError(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:-1", Handler: http.NotFoundHandler()}
	if err := ServeUntilDone(context.Background(), srv, time.Second); err == nil {
		t.Fatalf("expected listen error")
	}
}
