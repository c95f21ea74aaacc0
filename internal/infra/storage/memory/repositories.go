package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainbooking "staybook/internal/domain/booking"
	domainproperty "staybook/internal/domain/property"
	domainrange "staybook/internal/domain/shared/daterange"
)

// BookingRepository stores bookings in memory. Save enforces the calendar
// exclusion guard: of two racing creates for overlapping dates on one
// property only the first succeeds, mirroring the store-level constraint the
// durable backend provides.
type BookingRepository struct {
	mu    sync.RWMutex
	items map[domainbooking.BookingID]*domainbooking.Booking
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{items: make(map[domainbooking.BookingID]*domainbooking.Booking)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	booking, ok := r.items[id]
	if !ok {
		return nil, domainbooking.ErrBookingNotFound
	}
	clone := *booking
	return &clone, nil
}

func (r *BookingRepository) Save(ctx context.Context, booking *domainbooking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if booking.Version == 0 && booking.Status.Blocking() {
		for _, other := range r.items {
			if other.ID == booking.ID || other.PropertyID != booking.PropertyID {
				continue
			}
			if other.Status.Blocking() && other.Range.Overlaps(booking.Range) {
				return domainbooking.ErrDateConflict
			}
		}
	}
	booking.Version++
	clone := *booking
	r.items[booking.ID] = &clone
	return nil
}

func (r *BookingRepository) ListByTraveler(ctx context.Context, travelerID string) ([]*domainbooking.Booking, error) {
	return r.collect(func(b *domainbooking.Booking) bool { return b.TravelerID == travelerID })
}

func (r *BookingRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domainbooking.Booking, error) {
	return r.collect(func(b *domainbooking.Booking) bool { return b.OwnerID == ownerID })
}

func (r *BookingRepository) FindOverlapping(ctx context.Context, propertyID domainproperty.PropertyID, dr domainrange.DateRange) ([]*domainbooking.Booking, error) {
	return r.collect(func(b *domainbooking.Booking) bool {
		return b.PropertyID == propertyID && b.Status.Blocking() && b.Range.Overlaps(dr)
	})
}

func (r *BookingRepository) ListAcceptedEndedBefore(ctx context.Context, cutoff time.Time) ([]*domainbooking.Booking, error) {
	cutoff = cutoff.UTC()
	return r.collect(func(b *domainbooking.Booking) bool {
		return b.Status == domainbooking.StatusAccepted && !b.Range.CheckOut.After(cutoff)
	})
}

func (r *BookingRepository) collect(match func(*domainbooking.Booking) bool) ([]*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainbooking.Booking
	for _, b := range r.items {
		if match(b) {
			clone := *b
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// PropertyRepository is an in-memory property projection store.
type PropertyRepository struct {
	mu    sync.RWMutex
	items map[domainproperty.PropertyID]*domainproperty.Property
}

func NewPropertyRepository() *PropertyRepository {
	return &PropertyRepository{items: make(map[domainproperty.PropertyID]*domainproperty.Property)}
}

func (r *PropertyRepository) ByID(ctx context.Context, id domainproperty.PropertyID) (*domainproperty.Property, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prop, ok := r.items[id]
	if !ok {
		return nil, domainproperty.ErrPropertyNotFound
	}
	clone := *prop
	return &clone, nil
}

func (r *PropertyRepository) Save(ctx context.Context, p *domainproperty.Property) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *p
	r.items[p.ID] = &clone
	return nil
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
var _ domainproperty.Repository = (*PropertyRepository)(nil)
