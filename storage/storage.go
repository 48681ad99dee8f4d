// Package storage defines the key/value persistence contract used for
// credentials, plus in-memory and Redis backed implementations.
//
// Values are opaque bytes. Use WriteJSON and ReadJSON to persist typed values:
//
//	store := storage.NewInMemory()
//	err := storage.WriteJSON(ctx, store, "auth-token", token)
//
//	var token auth.AuthToken
//	found, err := storage.ReadJSON(ctx, store, "auth-token", &token)
//
// Every method fails only with a *storage.Error whose Kind names the
// operation that failed.
package storage

import (
	"context"

	json "github.com/goccy/go-json"
)

// Storage is a key/value store for small persisted values.
type Storage interface {
	// Write stores value under key, replacing any previous value.
	Write(ctx context.Context, key string, value []byte) error

	// Read returns the value under key. The boolean is false when the key
	// is absent, in which case the error is nil.
	Read(ctx context.Context, key string) ([]byte, bool, error)

	// Delete removes the value under key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every value owned by the store.
	Clear(ctx context.Context) error
}

// WriteJSON encodes v as JSON and writes it under key.
func WriteJSON(ctx context.Context, s Storage, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return NewError(KindWriteFailed, err)
	}
	return s.Write(ctx, key, data)
}

// ReadJSON reads the value under key and decodes it into dst.
// It returns false without touching dst when the key is absent.
func ReadJSON(ctx context.Context, s Storage, key string, dst any) (bool, error) {
	data, ok, err := s.Read(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, NewError(KindReadValueFailed, err)
	}
	return true, nil
}
