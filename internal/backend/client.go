// Package backend talks to the assistant backend API on behalf of the worker.
// The backend is an opaque external collaborator: user registry, conversation
// threads, and the message-processing pipeline all live there.
package backend

import (
	"context"
	"errors"
	"time"
)

// Operation-family sentinel errors. Callers branch on these to pick the
// user-facing reply; the wrapped detail goes to the log.
var (
	ErrRegistration      = errors.New("user registration failed")
	ErrUserExistsCheck   = errors.New("user existence check failed")
	ErrLocationUpdate    = errors.New("user location update failed")
	ErrThreadCreation    = errors.New("thread creation failed")
	ErrThreadInfo        = errors.New("thread info retrieval failed")
	ErrThreadHistory     = errors.New("thread history retrieval failed")
	ErrMessageProcessing = errors.New("message processing failed")
)

// ThreadInfo describes the user's most recent conversation thread.
type ThreadInfo struct {
	ThreadID        string
	LastMessageTime *time.Time // nil when the thread has no messages yet
}

// ThreadMessage is one message in a thread's history.
type ThreadMessage struct {
	Role    string
	Content string
}

// Client is the assistant backend API surface consumed by the worker.
type Client interface {
	// RegisterUser registers a new WhatsApp user with a preferred language.
	RegisterUser(ctx context.Context, phoneNum, preferredLanguage string) error

	// UserExists reports whether the phone number is already registered.
	UserExists(ctx context.Context, phoneNum string) (bool, error)

	// UpdateLocation stores the user's location for location-aware answers.
	UpdateLocation(ctx context.Context, phoneNum string, latitude, longitude float64) error

	// CreateThread starts a new conversation thread and returns its ID.
	CreateThread(ctx context.Context, phoneNum, title string) (string, error)

	// LastThreadInfo returns the user's most recent thread, or an empty
	// thread ID when the user has no threads yet.
	LastThreadInfo(ctx context.Context, phoneNum string) (*ThreadInfo, error)

	// ThreadHistory returns the messages of a thread.
	ThreadHistory(ctx context.Context, phoneNum, threadID string) ([]ThreadMessage, error)

	// ProcessMessage runs the user's message through the backend pipeline
	// and returns the complete response. The backend streams the response;
	// the client accumulates it to avoid mid-generation timeouts.
	ProcessMessage(ctx context.Context, phoneNum, threadID, message string) (string, error)
}
