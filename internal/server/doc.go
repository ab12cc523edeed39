// Package server provides HTTP routing, middleware and the local Spotify callback receiver.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] added with Use wraps every later registration; the first middleware added runs first.
//
// The [BasicRouter] implementation registers method-qualified [http.ServeMux] patterns, so a
// request for a known path with the wrong method gets a 405 from the mux itself.
//
// # Callback Handler
//
// [CallbackHandler] receives the browser redirect that ends a Spotify connect flow. The account
// backend exchanges the authorization code itself, so the handler only checks the
// auth_callback_state parameter against the token sent with the outbound redirect and then asks
// its [Completer] to reload the integration from the backend. The outcome is sent through a channel.
//
// It only processes one callback to prevent replay attacks.
//
// # Current Usage
//
// "musictime spotify connect --wait" starts a temporary HTTP server on the configured host and
// port, dispatches the redirect and shuts the server down after the first callback or a timeout.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
