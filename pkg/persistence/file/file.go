// Package file provides a file-backed transactional store for drafts and records.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/drafts/pkg/persistence"
)

const snapshotFile = "drafts.json"

// Persistence keeps the whole store in memory and writes a snapshot on every commit.
// Transactions are serialized. An empty root keeps the store in memory only.
type Persistence struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	state *snapshot
}

// NewPersistence opens the store rooted at root, loading the last committed snapshot if any.
func NewPersistence(logger *slog.Logger, root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{
		root:   cleanRoot,
		logger: logger.With("module", "file_persistence"),
		state:  newSnapshot(),
	}

	if cleanRoot == "" {
		return p, nil
	}

	err := os.MkdirAll(cleanRoot, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistence root: %w", err)
	}

	data, err := os.ReadFile(p.snapshotPath())
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	err = json.Unmarshal(data, p.state)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	p.state.ensure()

	return p, nil
}

func (p *Persistence) RunInTransaction(ctx context.Context, fn persistence.TxFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx := &transaction{state: p.state.clone()}

	err := fn(ctx, tx)
	if err != nil {
		return err
	}

	if !tx.dirty {
		return nil
	}

	err = p.write(tx.state)
	if err != nil {
		return err
	}

	p.state = tx.state

	return nil
}

// Close performs any necessary cleanup. Every commit is already on disk.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if p.root == "" {
		return nil
	}

	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) snapshotPath() string {
	return filepath.Join(p.root, snapshotFile)
}

func (p *Persistence) write(state *snapshot) error {
	if p.root == "" {
		return nil
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(p.root, snapshotFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}

	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	err = os.Rename(tmp.Name(), p.snapshotPath())
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	p.logger.Debug("snapshot committed", "path", p.snapshotPath())

	return nil
}
