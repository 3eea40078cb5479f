// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package authtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hemasrilatha/cms/internal/auth"
)

// Message kinds recorded by Notifier.
const (
	KindSignupCode      = "signup_code"
	KindEmailChangeCode = "email_change_code"
	KindPasswordReset   = "password_reset"
)

// Message is a captured notification.
type Message struct {
	Kind   string
	To     string
	Secret string
}

// Notifier records every notification instead of sending it. Setting Fail
// makes every send return that error.
type Notifier struct {
	mu       sync.Mutex
	messages []Message
	Fail     error
}

func (n *Notifier) record(kind, to, secret string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail != nil {
		return n.Fail
	}
	n.messages = append(n.messages, Message{Kind: kind, To: to, Secret: secret})
	return nil
}

// SendSignupCode implements auth.Notifier.
func (n *Notifier) SendSignupCode(_ context.Context, email, code string) error {
	return n.record(KindSignupCode, email, code)
}

// SendEmailChangeCode implements auth.Notifier.
func (n *Notifier) SendEmailChangeCode(_ context.Context, email, code string) error {
	return n.record(KindEmailChangeCode, email, code)
}

// SendPasswordReset implements auth.Notifier.
func (n *Notifier) SendPasswordReset(_ context.Context, email, token string) error {
	return n.record(KindPasswordReset, email, token)
}

// Messages returns a copy of every captured message.
func (n *Notifier) Messages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.messages...)
}

// Last returns the most recent secret of kind sent to to.
func (n *Notifier) Last(kind, to string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.messages) - 1; i >= 0; i-- {
		m := n.messages[i]
		if m.Kind == kind && m.To == to {
			return m.Secret, nil
		}
	}
	return "", fmt.Errorf("no %s message sent to %s", kind, to)
}

// Images is an in-memory auth.ImageStore.
type Images struct {
	mu      sync.Mutex
	BaseURL string
	objects map[string][]byte
}

// NewImages creates an empty Images serving URLs under baseURL.
func NewImages(baseURL string) *Images {
	return &Images{BaseURL: strings.TrimSuffix(baseURL, "/"), objects: make(map[string][]byte)}
}

// Put implements auth.ImageStore.
func (s *Images) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url := s.BaseURL + "/" + key
	s.objects[url] = append([]byte(nil), data...)
	return url, nil
}

// Delete implements auth.ImageStore.
func (s *Images) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, url)
	return nil
}

// Has reports whether url is stored.
func (s *Images) Has(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[url]
	return ok
}

// Len reports how many objects are stored.
func (s *Images) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

var (
	_ auth.Notifier   = (*Notifier)(nil)
	_ auth.ImageStore = (*Images)(nil)
)
