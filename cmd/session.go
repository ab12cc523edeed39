package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/musictime/internal/integration"
	"github.com/desertthunder/musictime/internal/shared"
	"github.com/desertthunder/musictime/internal/ui"
	"github.com/urfave/cli/v3"
)

// SessionSet stores the backend session token and refreshes the client credentials with it.
func (r *Runner) SessionSet(ctx context.Context, cmd *cli.Command) error {
	token := strings.TrimSpace(cmd.StringArg("token"))
	if token == "" {
		return fmt.Errorf("%w: token is required", shared.ErrMissingArgument)
	}

	if err := r.init(ctx); err != nil {
		return err
	}

	if _, err := shared.ParseSessionClaims(token); err != nil {
		r.logger.Warn("session token is not a readable JWT, storing it as-is", "error", err)
	}

	if err := r.settings.Set(ctx, integration.KeySessionToken, token); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}

	r.controller.UpdateClientCredentials(ctx)
	if err := r.controller.UpdateConfig(ctx); err != nil {
		return err
	}

	return r.writePlain("%s\n", ui.Success("✓ Session saved"))
}

// SessionShow prints the claims of the stored session token.
func (r *Runner) SessionShow(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	token, err := r.settings.Get(ctx, integration.KeySessionToken)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	if token == "" {
		return fmt.Errorf("%w: no session stored", shared.ErrNotAuthenticated)
	}

	claims, err := shared.ParseSessionClaims(token)
	if err != nil {
		return err
	}

	r.writePlain("User: %d\n", claims.UserID)
	if claims.ExpiresAt == nil {
		return r.writePlain("Expires: never\n")
	}

	expires := claims.ExpiresAt.Time
	if claims.Expired(time.Now()) {
		return r.writePlain("Expires: %s %s\n", expires.Format(time.RFC1123), ui.Failure("(expired)"))
	}
	return r.writePlain("Expires: %s\n", expires.Format(time.RFC1123))
}
