// Package pids allocates, registers and resolves persistent identifiers.
package pids

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/drafts/pkg/models"
	"github.com/dukex/drafts/pkg/persistence"
)

const (
	alphabet    = "0123456789abcdefghjkmnpqrstvwxyz"
	chunkLength = 5
	maxAttempts = 10
)

var (
	ErrAlreadyRegistered = errors.New("identifier already registered")
	ErrMintExhausted     = errors.New("could not allocate a unique identifier")
)

// Minter allocates identifiers in NEW status and moves them through their lifecycle.
type Minter struct {
	generate func() (string, error)
	now      func() time.Time
}

type MinterOption func(*Minter)

// WithGenerator replaces the random value generator.
func WithGenerator(generate func() (string, error)) MinterOption {
	return func(m *Minter) {
		m.generate = generate
	}
}

func WithClock(now func() time.Time) MinterOption {
	return func(m *Minter) {
		m.now = now
	}
}

func NewMinter(opts ...MinterOption) *Minter {
	m := &Minter{
		generate: RandomValue,
		now:      func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Mint allocates a NEW identifier of the given type bound to targetID.
func (m *Minter) Mint(ctx context.Context, tx persistence.IdentifierRepository, pidType models.PIDType, targetID string) (*models.PersistentIdentifier, error) {
	for range maxAttempts {
		value, err := m.generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate identifier: %w", err)
		}

		_, err = tx.IdentifierByValue(ctx, pidType, value)
		if err == nil {
			continue
		}

		if !persistence.IsNotFound(err) {
			return nil, err
		}

		now := m.now()
		pid := &models.PersistentIdentifier{
			Type:      pidType,
			Value:     value,
			Status:    models.PIDStatusNew,
			TargetID:  targetID,
			CreatedAt: now,
			UpdatedAt: now,
		}

		err = tx.SaveIdentifier(ctx, pid)
		if err != nil {
			return nil, err
		}

		return pid, nil
	}

	return nil, ErrMintExhausted
}

// Register marks the identifier as REGISTERED. Registering twice is a no-op.
func (m *Minter) Register(ctx context.Context, tx persistence.IdentifierRepository, pid *models.PersistentIdentifier) error {
	if pid.IsRegistered() {
		return nil
	}

	pid.Status = models.PIDStatusRegistered
	pid.UpdatedAt = m.now()

	return tx.SaveIdentifier(ctx, pid)
}

// Release removes an identifier that was never registered.
func (m *Minter) Release(ctx context.Context, tx persistence.IdentifierRepository, pid *models.PersistentIdentifier) error {
	if pid.IsRegistered() {
		return fmt.Errorf("release %s %s: %w", pid.Type, pid.Value, ErrAlreadyRegistered)
	}

	return tx.DeleteIdentifier(ctx, pid.Type, pid.Value)
}

// RandomValue returns a value shaped like "k3x9a-0bq7z".
func RandomValue() (string, error) {
	buf := make([]byte, chunkLength*2)

	_, err := rand.Read(buf)
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, chunkLength*2+1)
	for i, b := range buf {
		if i == chunkLength {
			out = append(out, '-')
		}

		out = append(out, alphabet[int(b)%len(alphabet)])
	}

	return string(out), nil
}
