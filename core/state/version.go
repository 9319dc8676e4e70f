package state

import (
	"errors"
	"fmt"
)

// StateVersion is the record layout this binary reads. Bump it whenever a
// stored record changes shape.
const StateVersion uint32 = 1

var (
	stateVersionKey = []byte("state/version")

	ErrStateVersionMismatch = errors.New("state: schema version mismatch")
)

func (m *Manager) SetStateVersion(version uint32) error {
	return m.KVPut(stateVersionKey, version)
}

// StateVersion returns the stored layout version and whether one is set.
func (m *Manager) StateVersion() (uint32, bool, error) {
	var stored uint32
	ok, err := m.KVGet(stateVersionKey, &stored)
	return stored, ok, err
}

// CheckStateVersion fails with ErrStateVersionMismatch when a stored
// version differs from StateVersion. Unstamped state passes.
func (m *Manager) CheckStateVersion() error {
	stored, ok, err := m.StateVersion()
	if err != nil || !ok || stored == StateVersion {
		return err
	}
	return fmt.Errorf("%w: stored %d, binary %d", ErrStateVersionMismatch, stored, StateVersion)
}
