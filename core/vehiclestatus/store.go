package vehiclestatus

import (
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/etr/core/model"
)

// LastCommand summarises the most recent command completed for a vehicle.
type LastCommand struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Status captures the latest known state of a vehicle.
type Status struct {
	VehicleID   string       `json:"vehicle_id"`
	DisplayName string       `json:"display_name,omitempty"`
	State       string       `json:"state"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Frame       model.Frame  `json:"frame"`
	LastCommand *LastCommand `json:"last_command,omitempty"`
}

type Filter struct {
	State string
}

type Store interface {
	Update(frames []model.Frame, at time.Time)
	List(Filter) []Status
	Track(commandID, vehicleID string)
	Complete(cmd LastCommand) bool
}

// maxEarly bounds completions kept for commands not tracked yet.
const maxEarly = 256

type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string]Status
	pending map[string]string
	early   map[string]LastCommand
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]Status{}, pending: map[string]string{}, early: map[string]LastCommand{}}
}

// Update replaces the stored frame of every vehicle present in frames.
// Vehicles absent from the batch keep their previous entry.
func (s *MemoryStore) Update(frames []model.Frame, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range frames {
		id := f.ID()
		if id == "" {
			continue
		}
		st := s.data[id]
		st.VehicleID = id
		st.DisplayName = f.DisplayName()
		st.State = string(f.State())
		st.UpdatedAt = at
		st.Frame = f
		s.data[id] = st
	}
}

// Track remembers which vehicle a dispatched command targets until its
// completion is recorded. A completion that arrived first is applied now.
func (s *MemoryStore) Track(commandID, vehicleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cmd, ok := s.early[commandID]; ok {
		delete(s.early, commandID)
		s.attach(vehicleID, cmd)
		return
	}
	s.pending[commandID] = vehicleID
}

// Complete attaches cmd to the vehicle it was tracked for. It reports false
// for commands that are not tracked yet; a bounded number of those is kept
// for a later Track.
func (s *MemoryStore) Complete(cmd LastCommand) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.pending[cmd.ID]
	if !ok {
		if len(s.early) >= maxEarly {
			for k := range s.early {
				delete(s.early, k)
				break
			}
		}
		s.early[cmd.ID] = cmd
		return false
	}
	delete(s.pending, cmd.ID)
	s.attach(id, cmd)
	return true
}

func (s *MemoryStore) attach(id string, cmd LastCommand) {
	st := s.data[id]
	if st.VehicleID == "" {
		st.VehicleID = id
	}
	st.LastCommand = &cmd
	s.data[id] = st
}

func (s *MemoryStore) List(f Filter) []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Status, 0, len(s.data))
	for _, st := range s.data {
		if f.State != "" && st.State != f.State {
			continue
		}
		res = append(res, st)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].VehicleID < res[j].VehicleID })
	return res
}
