// Command kvstored is a small HTTP front end for internal/kv, exposing the
// KeyValue facet of the store (§6 of the design) over a REST-ish API:
//
//	PUT    /kv/{namespace}/{key}        set a value
//	GET    /kv/{namespace}/{key}        read the current value
//	DELETE /kv/{namespace}/{key}        delete a value
//	POST   /kv/{namespace}/{key}/incr   increment a numeric value
//	POST   /kv/{namespace}/{key}/decr   decrement a numeric value
//	GET    /healthz                     liveness probe
//	GET    /stats                       operation counts and in-memory sizes
//
// Configuration is read from the environment, following cmd/node's
// getenv/mustGetenv convention:
//   - KV_LISTEN: listen address (default ":8090")
//   - KV_DB_PATH: bbolt database file path (default "./kvstored.db")
//   - KV_PERSISTENCE_MODE: "immediate" or "lazy" (default "lazy")
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/torua-kv/internal/kv"
	"github.com/dreamware/torua-kv/internal/kvclient"
	"github.com/dreamware/torua-kv/internal/kvtree"
)

// logFatal is a variable to allow mocking log.Fatal in tests, the same
// indirection cmd/node uses.
var logFatal = log.Fatalf

func main() {
	listen := getenv("KV_LISTEN", ":8090")
	dbPath := getenv("KV_DB_PATH", "./kvstored.db")
	mode := getenv("KV_PERSISTENCE_MODE", "lazy")

	tree, err := kvtree.OpenBolt(dbPath)
	if err != nil {
		logFatal("open db %s: %v", dbPath, err)
	}

	policy := newPolicy(mode)
	store := kv.New(tree, policy)

	launchedAt := time.Now().UTC()
	if err := kv.LoadExpirations(context.Background(), store, launchedAt); err != nil {
		log.Printf("kvstored: load expirations: %v", err)
	}

	mux := newMux(store)

	s := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// The HTTP listener and the signal-triggered shutdown sequence run
	// under one errgroup so either side's failure cancels the other's
	// context.
	g, gctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		log.Printf("kvstored listening on %s (db %s, persistence %s)", listen, dbPath, mode)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		select {
		case <-stop:
		case <-gctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Printf("kvstored: http shutdown error: %v", err)
		}
		if err := store.Shutdown(shutdownCtx); err != nil {
			log.Printf("kvstored: store shutdown error: %v", err)
		}
		if err := tree.Close(); err != nil {
			log.Printf("kvstored: close db: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("kvstored: %v", err)
	}
	log.Println("kvstored stopped")
}

// newMux builds the HTTP routing table over store, split out from main so
// tests can exercise it directly with an httptest.Server.
func newMux(store *kv.Store) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/kv/", func(w http.ResponseWriter, r *http.Request) {
		handleKeyRequest(store, w, r)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(store.Stats())
	})
	return mux
}

func newPolicy(mode string) kv.PersistencePolicy {
	if mode == "immediate" {
		return kv.Immediate()
	}
	fiveSeconds := 5 * time.Second
	return kv.Lazy(
		kv.Threshold{Changes: 100},
		kv.Threshold{Changes: 1, Duration: &fiveSeconds},
	)
}

// handleKeyRequest parses /kv/{namespace}/{key}[/incr|/decr] and dispatches
// to the matching handler.
//
// Parameters:
//   - store: the Store to execute the resulting Operation against.
//   - w, r: the in-flight HTTP request/response pair; r.URL.Path must
//     begin with "/kv/".
//
// Returns (HTTP):
//   - 400 if the path does not match /kv/{namespace}/{key}[/incr|/decr].
//   - 405 if the method does not match the matched route.
//   - Otherwise, whatever the matched handler writes.
func handleKeyRequest(store *kv.Store, w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/kv/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		http.Error(w, "path must be /kv/{namespace}/{key}", http.StatusBadRequest)
		return
	}
	namespace, key := parts[0], parts[1]

	switch {
	case len(parts) == 2:
		switch r.Method {
		case http.MethodPut:
			handleSet(store, namespace, key, w, r)
		case http.MethodGet:
			handleGet(store, namespace, key, w, r)
		case http.MethodDelete:
			handleDelete(store, namespace, key, w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 3 && (parts[2] == "incr" || parts[2] == "decr") && r.Method != http.MethodPost:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	case len(parts) == 3 && parts[2] == "incr":
		handleIncrDecr(store, namespace, key, true, w, r)
	case len(parts) == 3 && parts[2] == "decr":
		handleIncrDecr(store, namespace, key, false, w, r)
	default:
		http.Error(w, "unrecognized path", http.StatusBadRequest)
	}
}

// handleSet serves PUT /kv/{namespace}/{key}: decodes a kvclient.SetRequest
// body and executes the corresponding SetCommand.
//
// Parameters:
//   - store: the Store to write to.
//   - namespace, key: parsed from the request path.
//   - w, r: the in-flight HTTP request/response pair; r.Body must be a
//     JSON-encoded kvclient.SetRequest.
//
// Returns (HTTP):
//   - 200 with a JSON kvclient.Response on success.
//   - 400 for a malformed body or an invalid value (e.g. NaN).
//   - 503 if the store is shutting down.
func handleSet(store *kv.Store, namespace, key string, w http.ResponseWriter, r *http.Request) {
	var req kvclient.SetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	value, err := req.Value.ToKV()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd := kv.SetCommand{
		Value:                  value,
		KeepExistingExpiration: req.KeepExistingExpiration,
		ReturnPrevious:         req.ReturnPrevious,
	}
	if req.ExpirationUnixMillis != nil {
		t := time.UnixMilli(*req.ExpirationUnixMillis).UTC()
		cmd.Expiration = &t
	}
	switch req.Check {
	case "exists":
		cmd.Check = kv.CheckExists
	case "not_exists":
		cmd.Check = kv.CheckNotExists
	}

	out, err := store.Execute(r.Context(), kv.Operation{Namespace: namespace, Key: key, Command: cmd})
	writeResult(w, out, err)
}

// handleGet serves GET /kv/{namespace}/{key}: reads the current value,
// optionally deleting it atomically via the ?delete=true query parameter.
//
// Parameters:
//   - store: the Store to read from.
//   - namespace, key: parsed from the request path.
//   - w, r: the in-flight HTTP request/response pair; the "delete" query
//     parameter, if "true", makes this a get-and-delete.
//
// Returns (HTTP):
//   - 200 with a JSON kvclient.Response; its value is omitted if the key
//     is absent.
//   - 503 if the store is shutting down.
func handleGet(store *kv.Store, namespace, key string, w http.ResponseWriter, r *http.Request) {
	del := r.URL.Query().Get("delete") == "true"
	out, err := store.Execute(r.Context(), kv.Operation{
		Namespace: namespace,
		Key:       key,
		Command:   kv.GetCommand{Delete: del},
	})
	writeResult(w, out, err)
}

// handleDelete serves DELETE /kv/{namespace}/{key}: removes the key,
// optionally reporting the value it held via ?return_previous=true.
//
// Parameters:
//   - store: the Store to delete from.
//   - namespace, key: parsed from the request path.
//   - w, r: the in-flight HTTP request/response pair.
//
// Returns (HTTP):
//   - 200 with a JSON kvclient.Response; deleting an absent key is not
//     an error.
//   - 503 if the store is shutting down.
func handleDelete(store *kv.Store, namespace, key string, w http.ResponseWriter, r *http.Request) {
	returnPrevious := r.URL.Query().Get("return_previous") == "true"
	out, err := store.Execute(r.Context(), kv.Operation{
		Namespace: namespace,
		Key:       key,
		Command:   kv.DeleteCommand{ReturnPrevious: returnPrevious},
	})
	writeResult(w, out, err)
}

// handleIncrDecr serves POST /kv/{namespace}/{key}/incr and /decr: decodes
// a kvclient.IncrDecrRequest body and executes the corresponding
// IncrementCommand or DecrementCommand.
//
// Parameters:
//   - store: the Store to modify.
//   - namespace, key: parsed from the request path.
//   - increment: true for /incr, false for /decr.
//   - w, r: the in-flight HTTP request/response pair; r.Body must be a
//     JSON-encoded kvclient.IncrDecrRequest.
//
// Returns (HTTP):
//   - 200 with a JSON kvclient.Response carrying the new value.
//   - 400 for a malformed body or a type mismatch (the stored value is
//     not numeric).
//   - 503 if the store is shutting down.
func handleIncrDecr(store *kv.Store, namespace, key string, increment bool, w http.ResponseWriter, r *http.Request) {
	var req kvclient.IncrDecrRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := req.Amount.ToKV()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var cmd kv.Command
	if increment {
		cmd = kv.IncrementCommand{Amount: amount, Saturating: req.Saturating}
	} else {
		cmd = kv.DecrementCommand{Amount: amount, Saturating: req.Saturating}
	}

	out, err := store.Execute(r.Context(), kv.Operation{Namespace: namespace, Key: key, Command: cmd})
	writeResult(w, out, err)
}

func writeResult(w http.ResponseWriter, out kv.Output, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, kv.ErrTypeMismatch), errors.Is(err, kv.ErrValueInvalid):
			status = http.StatusBadRequest
		case errors.Is(err, kv.ErrShuttingDown):
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(kvclient.ResponseFromOutput(out))
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
