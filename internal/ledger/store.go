package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by store lookups for unknown IDs.
var ErrNotFound = errors.New("ledger: not found")

// Store persists units and chains. The ledger treats persistence as a
// synchronous local write; a failed write must leave no trace in memory,
// which the ledger enforces by writing through the store before registering.
type Store interface {
	SaveUnit(u *ContextUnit) error
	LoadUnit(id string) (*ContextUnit, error)
	ListUnits() ([]*ContextUnit, error)
	SaveChain(c *ContextChain) error
	LoadChain(id string) (*ContextChain, error)
	ListChains() ([]*ContextChain, error)
}

// FileStore writes one JSON document per unit under contexts/ and one per
// chain under chains/, keyed by ID. Field names follow the wire format
// exactly so hashes recomputed from a stored document match the original.
type FileStore struct {
	dir string
}

// NewFileStore creates the contexts/ and chains/ subdirectories under dir.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"contexts", "chains"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0700); err != nil {
			return nil, fmt.Errorf("init ledger storage: %w", err)
		}
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) unitPath(id string) string {
	return filepath.Join(s.dir, "contexts", id+".json")
}

func (s *FileStore) chainPath(id string) string {
	return filepath.Join(s.dir, "chains", id+".json")
}

// SaveUnit writes the unit's JSON document.
func (s *FileStore) SaveUnit(u *ContextUnit) error {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return fmt.Errorf("encode unit: %w", err)
	}
	if err := os.WriteFile(s.unitPath(u.ID), data, 0644); err != nil {
		return fmt.Errorf("write unit: %w", err)
	}
	return nil
}

// decodeUnit parses a unit document with UseNumber so integer content values
// keep their literal form. A plain Unmarshal would degrade integers above
// 2^53 to float64 and the recomputed content hash would no longer match the
// unit's ID.
func decodeUnit(data []byte) (*ContextUnit, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var u ContextUnit
	if err := dec.Decode(&u); err != nil {
		return nil, fmt.Errorf("parse unit: %w", err)
	}
	return &u, nil
}

// LoadUnit reads a unit document by ID.
func (s *FileStore) LoadUnit(id string) (*ContextUnit, error) {
	data, err := os.ReadFile(s.unitPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read unit: %w", err)
	}
	return decodeUnit(data)
}

// ListUnits reads every stored unit document. Order is directory order; the
// ledger re-sorts by timestamp when it hydrates.
func (s *FileStore) ListUnits() ([]*ContextUnit, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "contexts"))
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	var units []*ContextUnit
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		u, err := s.LoadUnit(id)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, nil
}

// SaveChain writes the chain's JSON document.
func (s *FileStore) SaveChain(c *ContextChain) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chain: %w", err)
	}
	if err := os.WriteFile(s.chainPath(c.ChainID), data, 0644); err != nil {
		return fmt.Errorf("write chain: %w", err)
	}
	return nil
}

// LoadChain reads a chain document by ID.
func (s *FileStore) LoadChain(id string) (*ContextChain, error) {
	data, err := os.ReadFile(s.chainPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read chain: %w", err)
	}
	var c ContextChain
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse chain: %w", err)
	}
	return &c, nil
}

// ListChains reads every stored chain document.
func (s *FileStore) ListChains() ([]*ContextChain, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "chains"))
	if err != nil {
		return nil, fmt.Errorf("list chains: %w", err)
	}
	var chains []*ContextChain
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		c, err := s.LoadChain(id)
		if err != nil {
			return nil, err
		}
		chains = append(chains, c)
	}
	return chains, nil
}
