package store

import (
	"context"
	"encoding/json"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"
)

// Firebase is a Store backed by a Firebase Realtime Database.
type Firebase struct {
	client *db.Client
}

// NewFirebase connects to the database at databaseURL. An empty
// credentialsFile falls back to application default credentials.
func NewFirebase(ctx context.Context, databaseURL, credentialsFile string) (*Firebase, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: databaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase init: %w", err)
	}
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase database client: %w", err)
	}
	return &Firebase{client: client}, nil
}

func (f *Firebase) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := f.client.NewRef(path).Get(ctx, &raw); err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	return raw, nil
}

func (f *Firebase) Set(ctx context.Context, path string, value any) error {
	return f.client.NewRef(path).Set(ctx, value)
}

func (f *Firebase) Push(ctx context.Context, path string, value any) (string, error) {
	ref, err := f.client.NewRef(path).Push(ctx, value)
	if err != nil {
		return "", err
	}
	return ref.Key, nil
}

func (f *Firebase) Delete(ctx context.Context, path string) error {
	return f.client.NewRef(path).Delete(ctx)
}

// Ping performs a shallow read of the patients collection.
func (f *Firebase) Ping(ctx context.Context) error {
	var keys map[string]any
	return f.client.NewRef("patients").GetShallow(ctx, &keys)
}
