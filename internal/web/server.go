// Package web exposes the ledger's read surface to the dashboard UI: JSON
// snapshots plus an SSE stream of ledger events.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bribeirobr25/diboas-sub002/internal/domain"
	"github.com/bribeirobr25/diboas-sub002/internal/events"
)

// ledgerReader is the view of the manager the server needs.
type ledgerReader interface {
	GetBalance() *domain.Balance
	GetTransactions() []*domain.Transaction
}

// eventStreamer bridges registry events into channels for SSE consumers.
type eventStreamer interface {
	Stream(eventTypes []string, buffer int) (<-chan events.Envelope, func())
}

var streamedEvents = []string{
	events.BalanceUpdated,
	events.TransactionAdded,
	events.TransactionUpdated,
	events.TransactionCompleted,
	events.TransactionFailed,
	events.StrategyUpdated,
	events.StrategyStopped,
}

// Server serves the ledger over HTTP.
type Server struct {
	Addr     string
	Ledger   ledgerReader
	Registry eventStreamer
}

// NewServer creates a new web server instance.
func NewServer(addr string, ledger ledgerReader, registry eventStreamer) *Server {
	return &Server{Addr: addr, Ledger: ledger, Registry: registry}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/balance", s.handleBalance)
	mux.HandleFunc("/transactions", s.handleTransactions)
	mux.HandleFunc("/events/stream", s.handleEventStream)

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"service":"diboas-ledger","status":"ok"}`)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Ledger.GetBalance())
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Ledger.GetTransactions())
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	stream, stop := s.Registry.Stream(streamedEvents, 64)
	defer stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case envelope, open := <-stream:
			if !open {
				return
			}
			payload, err := json.Marshal(envelope.Payload)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", envelope.Event, payload)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
