// Package localcart keeps the cart of an anonymous shopper keyed by guest
// session, and notifies subscribers whenever it changes.
package localcart

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

var (
	// ErrSessionRequired is returned when no guest session id is supplied.
	ErrSessionRequired = errors.New("guest session id required")
	// ErrInvalidQuantity is returned by Add for quantities below one.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// Item is one product line in a guest cart.
type Item struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// Store reads and writes guest carts through a Storage.
type Store struct {
	storage Storage
	logg    *logger.Logger
	now     func() time.Time
	subs    subscribers
}

// NewStore builds a Store over storage.
func NewStore(storage Storage, logg *logger.Logger) (*Store, error) {
	if storage == nil {
		return nil, errors.New("local cart storage required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Store{
		storage: storage,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Subscribe registers listener for every mutation and returns a function that
// removes it. Calling the returned function more than once is safe.
func (s *Store) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	return s.subs.add(listener)
}

// Get returns the session's items. It never fails: a missing, unreachable or
// unreadable cart is reported as empty, and unreadable data is discarded.
func (s *Store) Get(ctx context.Context, sessionID string) []Item {
	items, err := s.load(ctx, sessionID)
	if err != nil {
		s.logg.Warn(s.logCtx(ctx, sessionID), "local cart unavailable: "+err.Error())
		return []Item{}
	}
	return items
}

// load is Get for the write path: a storage read failure is returned so a
// mutation never overwrites a cart it could not read.
func (s *Store) load(ctx context.Context, sessionID string) ([]Item, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return []Item{}, nil
	}
	raw, err := s.storage.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []Item{}, nil
		}
		return nil, err
	}
	items, err := decode(raw)
	if err != nil {
		s.logg.Warn(s.logCtx(ctx, sessionID), "discarding corrupt local cart: "+err.Error())
		if delErr := s.storage.Delete(ctx, sessionID); delErr != nil {
			s.logg.Warn(s.logCtx(ctx, sessionID), "delete corrupt local cart: "+delErr.Error())
		}
		return []Item{}, nil
	}
	return items, nil
}

// Set overwrites the session's items in one write and then notifies subscribers.
func (s *Store) Set(ctx context.Context, sessionID string, items []Item) error {
	_, err := s.write(ctx, sessionID, EventReplaced, items)
	return err
}

// Add increments an existing line or appends a new one and returns the
// stored items.
func (s *Store) Add(ctx context.Context, sessionID string, productID uuid.UUID, qty int) ([]Item, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	items, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	found := false
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity += qty
			found = true
			break
		}
	}
	if !found {
		items = append(items, Item{ProductID: productID, Quantity: qty, AddedAt: s.now()})
	}
	return s.write(ctx, sessionID, EventItemAdded, items)
}

// UpdateQuantity sets the quantity for productID. Zero or negative removes it.
// Stock limits are not applied here.
func (s *Store) UpdateQuantity(ctx context.Context, sessionID string, productID uuid.UUID, qty int) ([]Item, error) {
	if qty <= 0 {
		return s.Remove(ctx, sessionID, productID)
	}
	items, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity = qty
		}
	}
	return s.write(ctx, sessionID, EventQuantityUpdated, items)
}

// Remove drops productID from the cart.
func (s *Store) Remove(ctx context.Context, sessionID string, productID uuid.UUID) ([]Item, error) {
	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(current))
	for _, item := range current {
		if item.ProductID != productID {
			items = append(items, item)
		}
	}
	return s.write(ctx, sessionID, EventItemRemoved, items)
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrSessionRequired
	}
	if err := s.storage.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.subs.notify(Event{Kind: EventCleared, SessionID: sessionID, Items: []Item{}})
	return nil
}

// Count returns the sum of quantities.
func (s *Store) Count(ctx context.Context, sessionID string) int {
	return count(s.Get(ctx, sessionID))
}

// Take reads and clears the cart atomically, so concurrent callers never
// both receive the same items.
func (s *Store) Take(ctx context.Context, sessionID string) ([]Item, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return []Item{}, nil
	}
	raw, err := s.storage.LoadAndDelete(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []Item{}, nil
		}
		return nil, err
	}
	items, err := decode(raw)
	if err != nil {
		s.logg.Warn(s.logCtx(ctx, sessionID), "discarding corrupt local cart: "+err.Error())
		items = []Item{}
	}
	s.subs.notify(Event{Kind: EventTaken, SessionID: sessionID, Items: []Item{}})
	return items, nil
}

func (s *Store) write(ctx context.Context, sessionID string, kind EventKind, items []Item) ([]Item, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionRequired
	}
	items = normalize(items)
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	if err := s.storage.Save(ctx, sessionID, raw); err != nil {
		return nil, err
	}
	snapshot := append([]Item(nil), items...)
	s.subs.notify(Event{Kind: kind, SessionID: sessionID, Items: snapshot, Count: count(snapshot)})
	return items, nil
}

func (s *Store) logCtx(ctx context.Context, sessionID string) context.Context {
	return s.logg.WithField(ctx, "guest_session", sessionID)
}

func decode(raw []byte) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.ProductID == uuid.Nil || item.Quantity < 1 {
			return nil, errors.New("invalid local cart line")
		}
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// normalize drops empty lines and folds duplicates into the first occurrence.
func normalize(items []Item) []Item {
	out := make([]Item, 0, len(items))
	index := map[uuid.UUID]int{}
	for _, item := range items {
		if item.ProductID == uuid.Nil || item.Quantity < 1 {
			continue
		}
		if i, ok := index[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out
}

func count(items []Item) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}
