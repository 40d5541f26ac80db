package calendar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	gcalendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/brightkind/clinic-platform/pkg/logging"
)

// OAuthScopes are requested at sign-in. Documents and drive-file scopes are
// included so the same token set serves the document flows.
var OAuthScopes = []string{
	gcalendar.CalendarScope,
	"https://www.googleapis.com/auth/documents",
	"https://www.googleapis.com/auth/drive.file",
}

// GoogleConfig holds the OAuth application credentials.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

// GoogleProvider builds Google Calendar clients from stored per-user tokens,
// persisting refreshed tokens back to the connection store.
type GoogleProvider struct {
	oauth  *oauth2.Config
	conns  ConnectionRepository
	logger *logging.Logger
}

var _ ProviderFactory = (*GoogleProvider)(nil)

func NewGoogleProvider(cfg GoogleConfig, conns ConnectionRepository, logger *logging.Logger) *GoogleProvider {
	if logger == nil {
		logger = logging.Default()
	}
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       OAuthScopes,
		},
		conns:  conns,
		logger: logger,
	}
}

// ForConnection returns an EventsAPI bound to the user's primary calendar.
// An expired access token is refreshed through the OAuth endpoint and the
// refreshed token set is written back before any calendar call is made.
func (p *GoogleProvider) ForConnection(ctx context.Context, conn *Connection) (EventsAPI, error) {
	tok := &oauth2.Token{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
		Expiry:       conn.TokenExpiry,
	}
	if !tok.Valid() {
		if conn.RefreshToken == "" {
			return nil, ErrNoRefreshToken
		}
		refreshed, err := p.oauth.TokenSource(ctx, tok).Token()
		if err != nil {
			return nil, fmt.Errorf("calendar: refresh token for %s: %w", conn.UserID, err)
		}
		conn.AccessToken = refreshed.AccessToken
		if refreshed.RefreshToken != "" {
			conn.RefreshToken = refreshed.RefreshToken
		}
		conn.TokenExpiry = refreshed.Expiry
		if err := p.conns.Put(ctx, conn); err != nil {
			// The refreshed token still works for this request.
			p.logger.Warn("failed to persist refreshed token", "user_id", conn.UserID, "error", err)
		}
		tok = refreshed
	}

	svc, err := gcalendar.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
	if err != nil {
		return nil, fmt.Errorf("calendar: build service for %s: %w", conn.UserID, err)
	}
	return &googleEvents{svc: svc, calendarID: "primary"}, nil
}

// Refresh force-refreshes a connection's token set and persists it. Used by
// the background refresh worker.
func (p *GoogleProvider) Refresh(ctx context.Context, conn *Connection) error {
	if conn.RefreshToken == "" {
		return ErrNoRefreshToken
	}
	tok := &oauth2.Token{
		RefreshToken: conn.RefreshToken,
		// Force the token source to treat the access token as stale.
		Expiry: time.Now().Add(-time.Minute),
	}
	refreshed, err := p.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return fmt.Errorf("calendar: refresh token for %s: %w", conn.UserID, err)
	}
	conn.AccessToken = refreshed.AccessToken
	if refreshed.RefreshToken != "" {
		conn.RefreshToken = refreshed.RefreshToken
	}
	conn.TokenExpiry = refreshed.Expiry
	return p.conns.Put(ctx, conn)
}

// googleEvents adapts the Calendar API to EventsAPI.
type googleEvents struct {
	svc        *gcalendar.Service
	calendarID string
}

func (g *googleEvents) CreateEvent(ctx context.Context, ev Event) (string, error) {
	created, err := g.svc.Events.Insert(g.calendarID, toGoogleEvent(ev)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar: insert event: %w", err)
	}
	return created.Id, nil
}

func (g *googleEvents) UpdateEvent(ctx context.Context, eventID string, ev Event) error {
	_, err := g.svc.Events.Update(g.calendarID, eventID, toGoogleEvent(ev)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("calendar: update event %s: %w", eventID, err)
	}
	return nil
}

func (g *googleEvents) DeleteEvent(ctx context.Context, eventID string) error {
	if err := g.svc.Events.Delete(g.calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("calendar: delete event %s: %w", eventID, err)
	}
	return nil
}

func toGoogleEvent(ev Event) *gcalendar.Event {
	return &gcalendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &gcalendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         &gcalendar.EventDateTime{DateTime: ev.End.Format(time.RFC3339)},
	}
}

// ServiceAccountConfig holds the admin-provisioned shared calendar
// credentials loaded from the environment.
type ServiceAccountConfig struct {
	ClientEmail  string
	PrivateKey   string
	PrivateKeyID string
	TokenURI     string
	CalendarID   string
}

// NewServiceAccountEvents builds an EventsAPI for the shared clinic calendar
// using a long-lived service-account credential. Returns nil when not
// configured.
func NewServiceAccountEvents(ctx context.Context, cfg ServiceAccountConfig) (EventsAPI, error) {
	if cfg.ClientEmail == "" || cfg.PrivateKey == "" || cfg.CalendarID == "" {
		return nil, nil
	}
	jwtCfg := &jwt.Config{
		Email:        cfg.ClientEmail,
		PrivateKey:   []byte(cfg.PrivateKey),
		PrivateKeyID: cfg.PrivateKeyID,
		TokenURL:     cfg.TokenURI,
		Scopes:       []string{gcalendar.CalendarScope},
	}
	if jwtCfg.TokenURL == "" {
		jwtCfg.TokenURL = google.JWTTokenURL
	}
	svc, err := gcalendar.NewService(ctx, option.WithTokenSource(jwtCfg.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("calendar: build service-account client: %w", err)
	}
	return &googleEvents{svc: svc, calendarID: cfg.CalendarID}, nil
}
