package notify

import (
	"context"
	"path/filepath"
)

// Notifier announces an archive after it was handed to every sink. The local
// file no longer exists when Send is called; path only names it.
type Notifier interface {
	Name() string
	Send(ctx context.Context, path string, metadata string) error
}

// Message is the JSON body sent by the webhook and NATS notifiers.
type Message struct {
	File     string `json:"file"`
	Metadata string `json:"metadata"`
}

func NewMessage(path string, metadata string) Message {
	return Message{File: filepath.Base(path), Metadata: metadata}
}

type funcNotifier struct {
	name string
	fn   func(context.Context, string, string) error
}

func Func(name string, fn func(ctx context.Context, path string, metadata string) error) Notifier {
	return &funcNotifier{name: name, fn: fn}
}

func (f *funcNotifier) Name() string {
	return f.name
}

func (f *funcNotifier) Send(ctx context.Context, path string, metadata string) error {
	return f.fn(ctx, path, metadata)
}
