package calendar

import "context"

// EventsAPI is the per-user slice of the external calendar provider. An
// implementation is already bound to one user's credentials and calendar.
type EventsAPI interface {
	CreateEvent(ctx context.Context, ev Event) (eventID string, err error)
	UpdateEvent(ctx context.Context, eventID string, ev Event) error
	DeleteEvent(ctx context.Context, eventID string) error
}

// ProviderFactory binds a stored connection to an EventsAPI, refreshing and
// persisting the token set when it has expired.
type ProviderFactory interface {
	ForConnection(ctx context.Context, conn *Connection) (EventsAPI, error)
}
