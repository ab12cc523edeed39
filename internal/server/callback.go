package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/desertthunder/musictime/internal/models"
	"github.com/desertthunder/musictime/internal/shared"
)

// Completer finishes a connect flow once the browser comes back.
type Completer interface {
	CheckCallbackState(ctx context.Context, state string) error
	CompleteConnect(ctx context.Context) (*models.Integration, error)
}

// CallbackResult contains the outcome of a connect flow.
type CallbackResult struct {
	Integration *models.Integration
	err         error
}

func (c *CallbackResult) Error() error {
	return c.err
}

// CallbackHandler handles the redirect that ends a Spotify connect flow.
// Implements the Handler interface for registration with a Router.
type CallbackHandler struct {
	completer   Completer
	resultChan  chan CallbackResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewCallbackHandler creates a handler that validates and completes callbacks through completer.
func NewCallbackHandler(completer Completer) *CallbackHandler {
	return &CallbackHandler{
		completer:  completer,
		resultChan: make(chan CallbackResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{"GET /callback"}
}

// ServeHTTP validates the callback state and reloads the integration from the backend.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.processed() {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		if !h.claim() {
			http.Error(w, "Callback already processed", http.StatusBadRequest)
			return
		}
		err := fmt.Errorf("%w: %s", shared.ErrAuthFailed, errParam)
		h.Send(CallbackResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	state := query.Get("auth_callback_state")
	if state == "" {
		state = query.Get("state")
	}
	if err := h.completer.CheckCallbackState(r.Context(), state); err != nil {
		if errors.Is(err, shared.ErrInvalidState) {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}
		if h.claim() {
			h.Send(CallbackResult{err: err})
		}
		http.Error(w, "Could not verify callback", http.StatusInternalServerError)
		return
	}

	if !h.claim() {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}

	integration, err := h.completer.CompleteConnect(r.Context())
	if err != nil {
		h.Send(CallbackResult{err: err})
		http.Error(w, "Could not complete Spotify connection", http.StatusBadGateway)
		return
	}

	h.Send(CallbackResult{Integration: integration})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `
<!DOCTYPE html>
<html>
<head>
    <title>Spotify Connected</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Spotify Connected</h1>
        <p>You can close this window and return to your editor.</p>
    </div>
</body>
</html>
`)
}

func (h *CallbackHandler) processed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.callbackHit
}

// claim marks the handler as used. Requests with a forged or missing state never claim it.
func (h *CallbackHandler) claim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.callbackHit {
		return false
	}
	h.callbackHit = true
	return true
}

// Send sends the result through the channel (only once).
func (h *CallbackHandler) Send(result CallbackResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving connect flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.resultChan
}
