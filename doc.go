// Package docauth stores an authentication framework's users, accounts,
// sessions and verification tokens in a document database, and bridges a
// signed-in session to short-lived scoped credentials that a client presents
// directly to the document store.
//
// # Architecture
//
// Adapter: The storage contract the framework drives. Every lookup is a point
// read by id or a single-collection equality query, so backends need no joins.
// Implementations live under stores/ (Cloud Datastore, GORM, in-memory).
//
// CredentialBridge: Exchanges the server's privileged identity once, then
// mints one scoped credential per session and caches it for an hour. The
// credential's subject is the user whose partition it unlocks.
//
// SessionReaper: Deletes expired sessions in bounded batches. Each deletion
// goes through Adapter.DeleteSession, which also revokes the session's cached
// credential.
//
// The client package holds the other side: a token source for the
// /auth/token endpoint and an AccessProxy that renews the credential when the
// store rejects it.
//
// # Basic Usage
//
// Wire a backend, a credential cache and the bridge:
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	cache := gae.NewCredentialCache(client, "")
//	adapter := gae.NewAdapter(client, "", docauth.WithCredentialCache(cache))
//
//	bridge := docauth.NewCredentialBridge(cache, &docauth.LocalExchanger{
//	    Email:        "svc@example.com",
//	    Password:     password,
//	    PasswordHash: hash,
//	}, &docauth.JWTMinter{SecretKey: secret})
//
// Serve credentials to signed-in clients:
//
//	r := mux.NewRouter()
//	r.Handle("/auth/token", &docauth.TokenHandler{Sessions: adapter, Bridge: bridge})
//
// Sweep expired sessions in the background:
//
//	reaper := docauth.NewSessionReaper(adapter)
//	go reaper.Run(ctx, 10*time.Minute)
//
// # Errors
//
// Lookups that miss return nil and a nil error. Store rejections of a scoped
// credential surface as ErrAuthorizationDenied, a gRPC PermissionDenied or
// Unauthenticated status, or an HTTP 401/403 StatusError; IsAuthorizationDenied
// recognizes all of them.
//
// # Testing
//
// The stores/memory backend and stores/storetest conformance suite let
// handlers and adapters be tested without a database, using
// httptest.NewRequest and httptest.ResponseRecorder.
package docauth
