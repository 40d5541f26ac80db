package documents

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	gdocs "google.golang.org/api/docs/v1"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DocsAPI is the slice of the external document provider the service needs.
type DocsAPI interface {
	// CreateDocument returns the new document's id and url.
	CreateDocument(ctx context.Context, title string) (id string, url string, err error)
	// AppendText inserts text at the end of the document body.
	AppendText(ctx context.Context, documentID string, text string) error
}

// GoogleDocs implements DocsAPI with the Docs API, creating through Drive as
// a fallback when the Docs create endpoint errors.
type GoogleDocs struct {
	docs  *gdocs.Service
	drive *gdrive.Service
}

// DocsScopes are the scopes the document flows need.
var DocsScopes = []string{
	"https://www.googleapis.com/auth/documents",
	"https://www.googleapis.com/auth/drive.file",
}

// NewGoogleDocs builds a DocsAPI from a service-account credential. Returns
// nil when the credential is not configured.
func NewGoogleDocs(ctx context.Context, clientEmail, privateKey, privateKeyID, tokenURI string) (*GoogleDocs, error) {
	if clientEmail == "" || privateKey == "" {
		return nil, nil
	}
	jwtCfg := &jwt.Config{
		Email:        clientEmail,
		PrivateKey:   []byte(privateKey),
		PrivateKeyID: privateKeyID,
		TokenURL:     tokenURI,
		Scopes:       DocsScopes,
	}
	if jwtCfg.TokenURL == "" {
		jwtCfg.TokenURL = google.JWTTokenURL
	}
	return newGoogleDocsFromTokenSource(ctx, jwtCfg.TokenSource(ctx))
}

// NewGoogleDocsForToken builds a DocsAPI on a user's OAuth token.
func NewGoogleDocsForToken(ctx context.Context, tok *oauth2.Token) (*GoogleDocs, error) {
	return newGoogleDocsFromTokenSource(ctx, oauth2.StaticTokenSource(tok))
}

func newGoogleDocsFromTokenSource(ctx context.Context, ts oauth2.TokenSource) (*GoogleDocs, error) {
	docsSvc, err := gdocs.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("documents: build docs client: %w", err)
	}
	driveSvc, err := gdrive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("documents: build drive client: %w", err)
	}
	return &GoogleDocs{docs: docsSvc, drive: driveSvc}, nil
}

func documentURL(id string) string {
	return "https://docs.google.com/document/d/" + id + "/edit"
}

// CreateDocument tries the Docs create endpoint first and falls back to
// creating an empty Docs-typed file through Drive.
func (g *GoogleDocs) CreateDocument(ctx context.Context, title string) (string, string, error) {
	doc, err := g.docs.Documents.Create(&gdocs.Document{Title: title}).Context(ctx).Do()
	if err == nil {
		return doc.DocumentId, documentURL(doc.DocumentId), nil
	}
	docsErr := err

	file, err := g.drive.Files.Create(&gdrive.File{
		Name:     title,
		MimeType: "application/vnd.google-apps.document",
	}).Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("%w: docs create: %v; drive create: %v", ErrCreateFailed, docsErr, err)
	}
	return file.Id, documentURL(file.Id), nil
}

// AppendText inserts text at the document end via a batched update.
func (g *GoogleDocs) AppendText(ctx context.Context, documentID string, text string) error {
	_, err := g.docs.Documents.BatchUpdate(documentID, &gdocs.BatchUpdateDocumentRequest{
		Requests: []*gdocs.Request{
			{
				InsertText: &gdocs.InsertTextRequest{
					Text: text,
					EndOfSegmentLocation: &gdocs.EndOfSegmentLocation{
						SegmentId: "",
					},
				},
			},
		},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("documents: batch update %s: %w", documentID, err)
	}
	return nil
}
