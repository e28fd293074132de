//go:build !wasm
// +build !wasm

// Package gae provides Google Cloud Datastore implementations of the docauth
// store interfaces. Every lookup is a point read by key or a single-kind
// equality query, so no composite joins are needed.
//
// # Datastore Kinds
//
// The Adapter keeps its kinds in one namespace (DefaultNamespace unless
// another is given):
//   - user: User profiles (name, email, image, emailVerified)
//   - account: Provider accounts linked to users
//   - session: Sessions keyed by a generated id, looked up by sessionToken
//   - verificationToken: Single-use sign-in tokens
//
// Two more kinds live outside it:
//   - tokens: Cached scoped credentials keyed by session token (CredentialCache)
//   - store: To-do items, children of a store/<userID> key (TodoStore)
//
// Optional fields are written as explicit null properties.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	cache := gae.NewCredentialCache(client, "")
//	adapter := gae.NewAdapter(client, "", docauth.WithCredentialCache(cache))
//	todos := gae.NewTodoStore(client, "")
package gae
