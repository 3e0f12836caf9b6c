package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/saunafleet/fleet-server/internal/model"
)

const (
	fileDirPermissions  = 0750
	fileFilePermissions = 0600
)

type fileSnapshot struct {
	Devices      []model.Device                        `json:"devices"`
	Retired      map[string]time.Time                  `json:"retiredDeviceIds"`
	PairingCodes []model.PairingCode                   `json:"pairingCodes"`
	Documents    map[model.DocumentKind]model.Document `json:"documents"`
}

// OpenFileStore is a MemoryStore that mirrors every committed state to a
// JSON file. The file is replaced by write-then-rename, never edited in place,
// so a crash leaves either the old or the new snapshot.
func OpenFileStore(path string, lockTimeout time.Duration) (*MemoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), fileDirPermissions); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	st, err := loadSnapshot(path)
	if err != nil {
		return nil, err
	}

	return newMemoryStore(st, lockTimeout, func(next *memState) error {
		return writeSnapshot(path, next)
	}), nil
}

func loadSnapshot(path string) (*memState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return newMemState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}

	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode store file %s: %w", path, err)
	}

	st := newMemState()
	for _, d := range snap.Devices {
		st.devices[d.ID] = d
	}
	for id, at := range snap.Retired {
		st.retired[id] = at
	}
	for _, pc := range snap.PairingCodes {
		st.codes[pc.Code] = pc
	}
	for kind, doc := range snap.Documents {
		st.docs[kind] = doc
	}
	return st, nil
}

func writeSnapshot(path string, st *memState) error {
	snap := fileSnapshot{
		Devices:      make([]model.Device, 0, len(st.devices)),
		Retired:      st.retired,
		PairingCodes: make([]model.PairingCode, 0, len(st.codes)),
		Documents:    st.docs,
	}
	for _, d := range st.devices {
		snap.Devices = append(snap.Devices, d)
	}
	for _, pc := range st.codes {
		snap.PairingCodes = append(snap.PairingCodes, pc)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, fileFilePermissions); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}
