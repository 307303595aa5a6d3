package syncer

import (
	"encoding/json"
	"fmt"
	"os"
)

// State holds per-peer high-water marks: how many ops of each peer's
// remote log have already been applied locally, and how many local ops
// have been pushed. Persisted as .lore/sync-state.json after every
// successfully applied batch, so an interrupted sync resumes instead of
// reprocessing.
type State struct {
	// Applied maps peer workstation id to the count of its ops applied.
	Applied map[string]int `json:"applied"`
	// Pushed is the number of locally-authored ops already in the remote.
	Pushed int `json:"pushed"`

	path string
}

// LoadState reads sync state, returning a fresh state when the file does
// not exist yet.
func LoadState(path string) (*State, error) {
	st := &State{Applied: make(map[string]int), path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return nil, fmt.Errorf("reading sync state: %w", err)
	}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("parsing sync state: %w", err)
	}
	if st.Applied == nil {
		st.Applied = make(map[string]int)
	}
	return st, nil
}

// Save persists the state atomically via temp file and rename.
func (st *State) Save() error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sync state: %w", err)
	}

	tempPath := st.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("writing sync state: %w", err)
	}
	if err := os.Rename(tempPath, st.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming sync state: %w", err)
	}
	return nil
}
