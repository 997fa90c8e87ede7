package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/registrar"
)

// Checkpoint is a copy of the registry at a ledger height.
type Checkpoint struct {
	ChainID   *big.Int        `json:"chain_id"`
	Height    uint64          `json:"height"`
	Time      time.Time       `json:"time"`
	Registrar common.Address  `json:"registrar"`
	Governor  common.Address  `json:"governor"`
	State     registrar.State `json:"state"`
}

// Checkpoint captures the registry as of the last applied operation.
func (n *Node) Checkpoint() Checkpoint {
	var cp Checkpoint
	_ = n.ledger.Read(func() error {
		cp = Checkpoint{
			ChainID:   n.genesis.ChainID,
			Height:    n.ledger.Height(),
			Time:      n.Now().UTC(),
			Registrar: n.registrar.Address(),
			Governor:  n.registrar.Governor(),
			State:     n.registrar.State(),
		}
		return nil
	})
	return cp
}

// ExportCheckpoint stores a checkpoint in backend and returns its content id.
func (n *Node) ExportCheckpoint(ctx context.Context, backend interfaces.StorageBackend) (interfaces.ContentID, Checkpoint, error) {
	cp := n.Checkpoint()
	data, err := json.Marshal(cp)
	if err != nil {
		return interfaces.ContentID{}, cp, err
	}
	id, err := backend.Store(ctx, data, interfaces.CheckpointType)
	if err != nil {
		return id, cp, fmt.Errorf("storing checkpoint: %w", err)
	}
	n.log.Info("Registry checkpoint exported",
		"height", cp.Height,
		"contentID", id.String(),
		"backend", backend.Name())
	return id, cp, nil
}

// FetchCheckpoint loads a checkpoint by content id from backend.
func FetchCheckpoint(ctx context.Context, backend interfaces.StorageBackend, id interfaces.ContentID) (*Checkpoint, error) {
	data, err := backend.Fetch(ctx, id, interfaces.CheckpointType)
	if err != nil {
		return nil, fmt.Errorf("fetching checkpoint %s: %w", id, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", id, err)
	}
	return &cp, nil
}
