package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brightkind/clinic-platform/internal/observability/metrics"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

var docTracer = otel.Tracer("clinic.internal.documents")

// Service keeps one external document per client and appends formatted
// sections to it. Creation and append are not transactional with the
// triggering database write; callers invoke them best-effort and swallow
// failures so the primary record write stays successful.
type Service struct {
	mappings MappingStore
	api      DocsAPI
	logger   *logging.Logger
	metrics  *metrics.SyncMetrics
}

func NewService(mappings MappingStore, api DocsAPI, logger *logging.Logger, m *metrics.SyncMetrics) *Service {
	if mappings == nil {
		panic("documents: mapping store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{mappings: mappings, api: api, logger: logger, metrics: m}
}

// Enabled reports whether an external document provider is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.api != nil
}

// Exists reports whether the client already has a document mapping. A
// missing mapping is not an error; any other store failure is returned so
// callers do not mistake a transient read error for absence.
func (s *Service) Exists(ctx context.Context, clientID string) (*ClientDocument, bool, error) {
	doc, err := s.mappings.Get(ctx, clientID)
	if errors.Is(err, ErrMappingNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Ensure returns the client's document mapping, creating the document on
// first reference. Creation falls through the provider's strategies before
// giving up.
func (s *Service) Ensure(ctx context.Context, clientID, clientName, createdBy string) (*ClientDocument, error) {
	ctx, span := docTracer.Start(ctx, "documents.ensure")
	defer span.End()
	span.SetAttributes(attribute.String("client_id", clientID))

	doc, ok, err := s.Exists(ctx, clientID)
	if err != nil {
		// Creating here could duplicate an existing external document, so
		// the whole operation aborts until the store answers.
		span.RecordError(err)
		return nil, fmt.Errorf("documents: read mapping: %w", err)
	}
	if ok {
		return doc, nil
	}
	if s.api == nil {
		return nil, fmt.Errorf("documents: provider not configured")
	}

	title := fmt.Sprintf("%s - Assessment & Session Notes", clientName)
	id, url, err := s.api.CreateDocument(ctx, title)
	if err != nil {
		s.metrics.ObserveDocumentOp("create", "error")
		span.RecordError(err)
		return nil, err
	}

	doc = &ClientDocument{
		ClientID:    clientID,
		DocumentID:  id,
		DocumentURL: url,
		DocType:     DocTypeSession,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.mappings.Put(ctx, doc); err != nil {
		// The document exists externally; losing the mapping means a later
		// Ensure creates a duplicate. Logged for the debug surface.
		s.logger.Error("document created but mapping write failed",
			"client_id", clientID, "document_id", id, "error", err)
		s.metrics.ObserveDocumentOp("create", "error")
		return doc, nil
	}

	s.metrics.ObserveDocumentOp("create", "ok")
	s.logger.Info("client document created", "client_id", clientID, "document_id", id)
	return doc, nil
}

// Append ensures the client's document exists and appends one rendered
// section. Append is additive: the same request appended twice produces two
// sections.
func (s *Service) Append(ctx context.Context, req AppendRequest) (*ClientDocument, error) {
	ctx, span := docTracer.Start(ctx, "documents.append")
	defer span.End()
	span.SetAttributes(
		attribute.String("client_id", req.ClientID),
		attribute.String("kind", string(req.Kind)),
	)

	if !ValidSectionKind(req.Kind) {
		return nil, ErrInvalidSectionKind
	}

	doc, err := s.Ensure(ctx, req.ClientID, req.ClientName, req.UserID)
	if err != nil {
		return nil, err
	}

	if err := s.api.AppendText(ctx, doc.DocumentID, RenderSection(req)); err != nil {
		s.metrics.ObserveDocumentOp("append", "error")
		span.RecordError(err)
		return doc, err
	}

	s.metrics.ObserveDocumentOp("append", "ok")
	s.logger.Info("document section appended",
		"client_id", req.ClientID, "document_id", doc.DocumentID, "kind", req.Kind)
	return doc, nil
}

// AppendBestEffort runs Append and swallows any failure, logging it. Used by
// the session/client handlers where the primary write has already succeeded.
func (s *Service) AppendBestEffort(ctx context.Context, req AppendRequest) {
	if !s.Enabled() {
		return
	}
	if _, err := s.Append(ctx, req); err != nil {
		s.logger.Warn("document append failed",
			"client_id", req.ClientID, "kind", req.Kind, "error", err)
	}
}
