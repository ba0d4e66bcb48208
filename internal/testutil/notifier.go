package testutil

import (
	"context"
	"sync"
	"time"
)

// Sent is one captured recovery message
type Sent struct {
	To        string
	Secret    string
	ExpiresIn time.Duration
}

// Notifier records what would have been mailed
type Notifier struct {
	mu    sync.Mutex
	OTPs  []Sent
	Links []Sent
}

func (n *Notifier) SendPasswordResetOTP(_ context.Context, to, code string, expiresIn time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.OTPs = append(n.OTPs, Sent{To: to, Secret: code, ExpiresIn: expiresIn})
	return nil
}

func (n *Notifier) SendPasswordResetLink(_ context.Context, to, link string, expiresIn time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Links = append(n.Links, Sent{To: to, Secret: link, ExpiresIn: expiresIn})
	return nil
}

// LastOTP returns the most recent code sent to anyone
func (n *Notifier) LastOTP() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.OTPs) == 0 {
		return ""
	}
	return n.OTPs[len(n.OTPs)-1].Secret
}

// LastLink returns the most recent reset link
func (n *Notifier) LastLink() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Links) == 0 {
		return ""
	}
	return n.Links[len(n.Links)-1].Secret
}
