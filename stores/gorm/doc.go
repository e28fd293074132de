//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of the docauth Adapter and
// CredentialCache. It works with any database GORM supports; cmd/server opens
// it with the PostgreSQL driver.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: User profiles
//   - accounts: Provider accounts linked to users
//   - sessions: Sessions, looked up by session_token
//   - verification_tokens: Single-use sign-in tokens
//   - scoped_credentials: Cached scoped credentials keyed by session token
//   - todo_items: To-do items partitioned by owner (TodoStore)
//
// Optional columns are nullable and written as NULL when absent. Lookups that
// resolve a single row pick the smallest id among matches.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	gormstore.AutoMigrate(db)
//	cache := gormstore.NewCredentialCache(db)
//	adapter := gormstore.NewAdapter(db, docauth.WithCredentialCache(cache))
package gorm
