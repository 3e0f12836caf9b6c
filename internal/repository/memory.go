package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saunafleet/fleet-server/internal/model"
)

// memState is one immutable generation of the store. Published states are
// never modified; writers work on a clone and swap it in.
type memState struct {
	devices map[string]model.Device
	retired map[string]time.Time
	codes   map[string]model.PairingCode
	docs    map[model.DocumentKind]model.Document
	// seen is shared by every generation. Readers overlay it on devices.
	seen *lastSeenIndex
}

func newMemState() *memState {
	return &memState{
		devices: make(map[string]model.Device),
		retired: make(map[string]time.Time),
		codes:   make(map[string]model.PairingCode),
		docs:    make(map[model.DocumentKind]model.Document),
		seen:    newLastSeenIndex(),
	}
}

func (s *memState) clone() *memState {
	out := &memState{
		devices: make(map[string]model.Device, len(s.devices)),
		retired: make(map[string]time.Time, len(s.retired)),
		codes:   make(map[string]model.PairingCode, len(s.codes)),
		docs:    make(map[model.DocumentKind]model.Document, len(s.docs)),
		seen:    s.seen,
	}
	for id, d := range s.devices {
		out.devices[id] = d.Clone()
	}
	for id, at := range s.retired {
		out.retired[id] = at
	}
	for code, pc := range s.codes {
		out.codes[code] = clonePairingCode(pc)
	}
	for kind, doc := range s.docs {
		out.docs[kind] = doc.Clone()
	}
	return out
}

// lastSeenIndex holds heartbeat times recorded outside the store lock.
// Committed writes fold it into the device records.
type lastSeenIndex struct {
	mu   sync.RWMutex
	seen map[string]time.Time
}

func newLastSeenIndex() *lastSeenIndex {
	return &lastSeenIndex{seen: make(map[string]time.Time)}
}

// record keeps the later of the stored and the given time.
func (x *lastSeenIndex) record(id string, at time.Time) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if prev, ok := x.seen[id]; !ok || at.After(prev) {
		x.seen[id] = at
	}
}

func (x *lastSeenIndex) has(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.seen[id]
	return ok
}

// apply sets d.LastSeenAt to the indexed time when that is newer.
func (x *lastSeenIndex) apply(d *model.Device) {
	x.mu.RLock()
	at, ok := x.seen[d.ID]
	x.mu.RUnlock()
	if ok && (d.LastSeenAt == nil || at.After(*d.LastSeenAt)) {
		d.LastSeenAt = &at
	}
}

// fold writes the indexed times into st's devices.
func (x *lastSeenIndex) fold(st *memState) {
	for id, d := range st.devices {
		x.apply(&d)
		st.devices[id] = d
	}
}

// prune drops entries for devices that no longer exist in st.
func (x *lastSeenIndex) prune(st *memState) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id := range x.seen {
		if _, ok := st.devices[id]; !ok {
			delete(x.seen, id)
		}
	}
}

// persistFunc durably records a state before it is published.
type persistFunc func(*memState) error

// MemoryStore keeps the whole store in process. Readers load the current
// state pointer without locking.
type MemoryStore struct {
	current     atomic.Pointer[memState]
	sem         chan struct{}
	lockTimeout time.Duration
	persist     persistFunc
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return newMemoryStore(newMemState(), lockTimeout, nil)
}

func newMemoryStore(initial *memState, lockTimeout time.Duration, persist persistFunc) *MemoryStore {
	s := &MemoryStore{
		sem:         make(chan struct{}, 1),
		lockTimeout: lockTimeout,
		persist:     persist,
	}
	s.current.Store(initial)
	return s
}

func (s *MemoryStore) View(_ context.Context, fn func(r Reader) error) error {
	return fn(memReader{memView{st: s.current.Load()}})
}

func (s *MemoryStore) WithLock(ctx context.Context, fn func(tx Tx) error) error {
	return s.commit(ctx, func(next *memState) error {
		return fn(memView{st: next})
	})
}

// TouchLastSeen records a heartbeat without waiting for the store lock. With
// a persist hook the first heartbeat of a device is written through, so a
// restart cannot mistake a device that has reported for an abandoned one;
// later heartbeats reach the file with the next committed write.
func (s *MemoryStore) TouchLastSeen(ctx context.Context, id string, at time.Time) (bool, error) {
	st := s.current.Load()
	d, ok := st.devices[id]
	if !ok {
		return false, nil
	}

	if s.persist != nil && d.LastSeenAt == nil && !st.seen.has(id) {
		found := false
		err := s.commit(ctx, func(next *memState) error {
			nd, ok := next.devices[id]
			if !ok {
				return nil
			}
			found = true
			if nd.LastSeenAt == nil || at.After(*nd.LastSeenAt) {
				nd.LastSeenAt = &at
				next.devices[id] = nd
			}
			return nil
		})
		return found, err
	}

	st.seen.record(id, at)
	return true, nil
}

func (s *MemoryStore) commit(ctx context.Context, fn func(next *memState) error) error {
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case s.sem <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("%w: lock wait exceeded %s", ErrStoreBusy, s.lockTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()

	next := s.current.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	next.seen.fold(next)

	if s.persist != nil {
		if err := s.persist(next); err != nil {
			return fmt.Errorf("persist store: %w", err)
		}
	}

	s.current.Store(next)
	next.seen.prune(next)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// memView is the Tx over a private clone owned by WithLock.
type memView struct {
	st *memState
}

// memReader narrows memView to the read-only interfaces for View.
type memReader struct{ memView }

func (v memView) Devices() DeviceRepository           { return memDevices{v.st} }
func (v memView) PairingCodes() PairingCodeRepository { return memCodes{v.st} }
func (v memView) Documents() DocumentRepository       { return memDocs{v.st} }

var _ Tx = memView{}

func (v memReader) Devices() DeviceReader           { return memDevices{v.st} }
func (v memReader) PairingCodes() PairingCodeReader { return memCodes{v.st} }
func (v memReader) Documents() DocumentReader       { return memDocs{v.st} }

var _ Reader = memReader{}

type memDevices struct{ st *memState }

func (r memDevices) FindByID(_ context.Context, id string) (*model.Device, error) {
	d, ok := r.st.devices[id]
	if !ok {
		return nil, nil
	}
	out := d.Clone()
	r.st.seen.apply(&out)
	return &out, nil
}

func (r memDevices) List(_ context.Context) ([]model.Device, error) {
	out := make([]model.Device, 0, len(r.st.devices))
	for _, d := range r.st.devices {
		c := d.Clone()
		r.st.seen.apply(&c)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r memDevices) IsRetired(_ context.Context, id string) (bool, error) {
	_, ok := r.st.retired[id]
	return ok, nil
}

func (r memDevices) Create(_ context.Context, device model.Device) error {
	if _, ok := r.st.devices[device.ID]; ok {
		return fmt.Errorf("device %s already exists", device.ID)
	}
	r.st.devices[device.ID] = device.Clone()
	return nil
}

// Update writes everything but LastSeenAt, which only TouchLastSeen sets.
func (r memDevices) Update(_ context.Context, device model.Device) error {
	prev, ok := r.st.devices[device.ID]
	if !ok {
		return fmt.Errorf("device %s does not exist", device.ID)
	}
	d := device.Clone()
	d.LastSeenAt = prev.LastSeenAt
	r.st.devices[device.ID] = d
	return nil
}

func (r memDevices) Delete(_ context.Context, id string, at time.Time) (bool, error) {
	if _, ok := r.st.devices[id]; !ok {
		return false, nil
	}
	delete(r.st.devices, id)
	r.st.retired[id] = at
	return true, nil
}

type memCodes struct{ st *memState }

func clonePairingCode(pc model.PairingCode) model.PairingCode {
	out := pc
	if pc.ClaimedDeviceID != nil {
		id := *pc.ClaimedDeviceID
		out.ClaimedDeviceID = &id
	}
	if pc.ClaimedAt != nil {
		at := *pc.ClaimedAt
		out.ClaimedAt = &at
	}
	return out
}

func (r memCodes) FindByCode(_ context.Context, code string) (*model.PairingCode, error) {
	pc, ok := r.st.codes[code]
	if !ok {
		return nil, nil
	}
	out := clonePairingCode(pc)
	return &out, nil
}

func (r memCodes) FindUnclaimedByOrigin(_ context.Context, originHint string) ([]model.PairingCode, error) {
	var out []model.PairingCode
	for _, pc := range r.st.codes {
		if pc.OriginHint == originHint && !pc.IsClaimed() {
			out = append(out, clonePairingCode(pc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memCodes) List(_ context.Context) ([]model.PairingCode, error) {
	out := make([]model.PairingCode, 0, len(r.st.codes))
	for _, pc := range r.st.codes {
		out = append(out, clonePairingCode(pc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memCodes) Create(_ context.Context, params model.CreatePairingCodeParams) (*model.PairingCode, error) {
	if _, ok := r.st.codes[params.Code]; ok {
		return nil, fmt.Errorf("pairing code %s already exists", params.Code)
	}
	pc := model.PairingCode{
		Code:       params.Code,
		OriginHint: params.OriginHint,
		CreatedAt:  params.CreatedAt,
	}
	r.st.codes[pc.Code] = pc
	out := clonePairingCode(pc)
	return &out, nil
}

func (r memCodes) MarkClaimed(_ context.Context, code string, deviceID string, at time.Time) error {
	pc, ok := r.st.codes[code]
	if !ok {
		return fmt.Errorf("pairing code %s does not exist", code)
	}
	if pc.IsClaimed() {
		return fmt.Errorf("pairing code %s already claimed", code)
	}
	pc.ClaimedDeviceID = &deviceID
	pc.ClaimedAt = &at
	r.st.codes[code] = pc
	return nil
}

func (r memCodes) DeleteByCodes(_ context.Context, codes []string) (int64, error) {
	var n int64
	for _, code := range codes {
		if _, ok := r.st.codes[code]; ok {
			delete(r.st.codes, code)
			n++
		}
	}
	return n, nil
}

func (r memCodes) DeleteByDeviceID(_ context.Context, deviceID string) (int64, error) {
	var n int64
	for code, pc := range r.st.codes {
		if pc.ClaimedDeviceID != nil && *pc.ClaimedDeviceID == deviceID {
			delete(r.st.codes, code)
			n++
		}
	}
	return n, nil
}

type memDocs struct{ st *memState }

func (r memDocs) Get(_ context.Context, kind model.DocumentKind) (model.Document, error) {
	doc, ok := r.st.docs[kind]
	if !ok {
		return model.Document{}, nil
	}
	return doc.Clone(), nil
}

func (r memDocs) Put(_ context.Context, kind model.DocumentKind, doc model.Document, _ time.Time) error {
	r.st.docs[kind] = doc.Clone()
	return nil
}
