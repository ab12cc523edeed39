package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/desertthunder/musictime/internal/integration"
	"github.com/desertthunder/musictime/internal/server"
	"github.com/desertthunder/musictime/internal/shared"
	"github.com/desertthunder/musictime/internal/ui"
	"github.com/urfave/cli/v3"
)

const defaultCallbackTimeout = 2 * time.Minute

// statusView is the JSON shape of "spotify status".
type statusView struct {
	Connected        bool       `json:"connected"`
	IntegrationID    string     `json:"integration_id,omitempty"`
	SpotifyID        string     `json:"spotify_id,omitempty"`
	Email            string     `json:"email,omitempty"`
	DisplayName      string     `json:"display_name,omitempty"`
	Product          string     `json:"product,omitempty"`
	SessionUserID    int64      `json:"session_user_id,omitempty"`
	SessionExpiresAt *time.Time `json:"session_expires_at,omitempty"`
}

func newStatusView(status integration.Status) statusView {
	view := statusView{Connected: status.Connected()}
	if status.Integration != nil {
		view.IntegrationID = status.Integration.ID()
	}
	if u := status.User; u != nil {
		view.SpotifyID = u.ID
		view.Email = u.Email
		view.DisplayName = u.DisplayName
		view.Product = u.Product
	}
	if s := status.Session; s != nil {
		view.SessionUserID = s.UserID
		if s.ExpiresAt != nil {
			expires := s.ExpiresAt.Time
			view.SessionExpiresAt = &expires
		}
	}
	return view
}

func planLabel(premium bool) string {
	if premium {
		return "Spotify Premium"
	}
	return "Spotify Open"
}

// SpotifyConnect starts the browser flow that links a Spotify account.
func (r *Runner) SpotifyConnect(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}
	return r.authorize(ctx, cmd, r.controller.Connect)
}

// SpotifySwitch disconnects the linked account and connects a different one.
func (r *Runner) SpotifySwitch(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}
	return r.authorize(ctx, cmd, r.controller.SwitchAccount)
}

// SpotifyDisconnect unlinks the Spotify account after confirmation.
func (r *Runner) SpotifyDisconnect(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}
	r.prompt.AssumeYes = cmd.Bool("yes")

	result, err := r.controller.Disconnect(ctx, true)
	if err != nil {
		return err
	}
	if result.Declined() {
		return r.writePlain("%s\n", ui.Muted("No changes made."))
	}

	r.controller.Wait()
	return nil
}

// SpotifyStatus prints the linked account.
func (r *Runner) SpotifyStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	status, err := r.controller.Status(ctx)
	if err != nil {
		return err
	}

	view := newStatusView(status)
	if cmd.Bool("json") {
		return r.writeJSON(view, cmd.Bool("pretty"))
	}

	r.writePlain("%s\n", ui.Title("Spotify"))
	if !view.Connected {
		r.writePlain("%s\n", ui.Failure("✗ Not connected"))
		return r.writePlain("%s\n", ui.Muted("Run 'musictime spotify connect' to link an account."))
	}

	r.writePlain("%s\n", ui.Success("✓ Connected"))
	if view.Email != "" {
		r.writePlain("Account: %s\n", view.Email)
	}
	if view.Product != "" {
		r.writePlain("Plan: %s\n", planLabel(view.Product == "premium"))
	}
	if view.SessionExpiresAt != nil {
		r.writePlain("Session expires: %s\n", view.SessionExpiresAt.Format(time.RFC1123))
	}
	return nil
}

// SpotifyPremium reports whether the linked account is on the premium tier.
func (r *Runner) SpotifyPremium(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	r.controller.RefreshUser(ctx, false)
	premium := r.controller.IsPremiumUser(ctx)
	if !premium && !r.controller.HasSpotifyUser() {
		return r.writePlain("%s\n", ui.Warn("No Spotify user connected"))
	}
	if premium {
		return r.writePlain("%s\n", ui.Success("✓ "+planLabel(true)))
	}
	return r.writePlain("%s\n", planLabel(false))
}

// SpotifyMigrate promotes a legacy access token into an integration record.
func (r *Runner) SpotifyMigrate(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	migrated, err := r.controller.MigrateLegacyAccess(ctx)
	if err != nil {
		return err
	}

	if migrated || r.migrated {
		return r.writePlain("%s\n", ui.Success("✓ Legacy Spotify token migrated"))
	}
	return r.writePlain("%s\n", ui.Muted("Nothing to migrate."))
}

// authorize runs a connect-style flow and either reports the redirect or, with --wait,
// serves the callback until the connection completes.
func (r *Runner) authorize(ctx context.Context, cmd *cli.Command, flow func(context.Context) (integration.Result, error)) error {
	r.prompt.AssumeYes = cmd.Bool("yes")

	if cmd.Bool("wait") {
		return r.awaitCallback(ctx, flow)
	}

	result, err := flow(ctx)
	if err != nil {
		return err
	}
	return r.reportRedirect(result)
}

func (r *Runner) reportRedirect(result integration.Result) error {
	if result.Declined() {
		return r.writePlain("%s\n", ui.Muted("No changes made."))
	}

	r.writePlain("→ Opening browser to connect Spotify...\n")
	return r.writePlain("If the browser did not open, visit:\n%s\n", result.AuthURL)
}

// awaitCallback executes a connect flow with a local HTTP server receiving the browser callback
func (r *Runner) awaitCallback(ctx context.Context, flow func(context.Context) (integration.Result, error)) error {
	handler := server.NewCallbackHandler(r.controller)
	router := server.NewBasicRouter()
	callbackLogger := shared.WithLogger(r.logger, "component", "callback")
	router.Use(server.Recoverer(callbackLogger), server.RequestLogger(callbackLogger))
	router.Handle(http.MethodGet, "/health", server.Health())
	router.Handler(handler)

	serverAddr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	listener, err := net.Listen("tcp", serverAddr)
	if err != nil {
		return fmt.Errorf("%w: failed to listen on %s: %v", shared.ErrServiceUnavailable, serverAddr, err)
	}
	r.callbackAddr = listener.Addr().String()

	httpServer := &http.Server{Handler: router}
	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting callback server at %v", r.callbackAddr)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	result, err := flow(ctx)
	if err != nil {
		return err
	}
	if err := r.reportRedirect(result); err != nil || result.Declined() {
		return err
	}

	timeout := r.callbackTimeout
	if timeout <= 0 {
		timeout = defaultCallbackTimeout
	}
	r.writePlain("→ Waiting for authorization (%v timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var callback server.CallbackResult
	select {
	case callback = <-handler.Result():
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return fmt.Errorf("%w: authorization timed out after %v", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if callback.Error() != nil {
		return fmt.Errorf("authorization failed: %w", callback.Error())
	}

	return r.writePlainln("%s", ui.Success("✓ Spotify connected"))
}
