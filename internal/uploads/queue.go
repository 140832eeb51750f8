// Package uploads makes "capture now, upload eventually" reliable across
// connectivity loss. A direct two-phase upload is attempted first; on any
// failure the intent is persisted and replayed later by the sync
// coordinator.
package uploads

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"stayline/internal/api"
	"stayline/internal/common"
	"stayline/internal/logging"
	"stayline/internal/models"
	"stayline/internal/store"
)

// Result is what the caller sees. Submission never raises once the
// arguments validate; the UI proceeds as if the capture succeeded, with
// eventual delivery implied.
type Result struct {
	Success       bool   `json:"success"`
	OfflineQueued bool   `json:"offlineQueued"`
	MediaID       string `json:"mediaId,omitempty"`
}

// Options carries the optional parts of a submission.
type Options struct {
	Metadata   map[string]string
	QARequired bool
	AuthToken  string
}

// Registrar is the sync coordinator surface the queue needs: after
// enqueueing it registers a wake-up intent and moves on.
type Registrar interface {
	RegisterIntent(tag string)
}

// Service is the offline upload queue.
type Service struct {
	store     *store.Store
	api       api.Client
	registrar Registrar
	log       logging.Logger

	// limiter paces replay PUTs so a wake-up on a still-poor connection
	// does not saturate it.
	limiter *rate.Limiter
}

func NewService(st *store.Store, client api.Client, registrar Registrar, log logging.Logger, replayRate float64) *Service {
	if replayRate <= 0 {
		replayRate = 1
	}
	return &Service{
		store:     st,
		api:       client,
		registrar: registrar,
		log:       log.With("component", "uploads"),
		limiter:   rate.NewLimiter(rate.Limit(replayRate), 1),
	}
}

// SubmitUpload attempts the direct grant → PUT → confirm sequence and
// queues a replayable record when any step fails. file, module and
// entityID are mandatory; missing any is a caller error, reported
// synchronously and never queued.
func (s *Service) SubmitUpload(ctx context.Context, file models.FilePayload, module, entityID string, opts Options) (*Result, error) {
	if len(file.Data) == 0 {
		return nil, fmt.Errorf("%w: file is required", common.ErrInvalidArgument)
	}
	if module == "" {
		return nil, fmt.Errorf("%w: module is required", common.ErrInvalidArgument)
	}
	if entityID == "" {
		return nil, fmt.Errorf("%w: entityId is required", common.ErrInvalidArgument)
	}
	if file.Size == 0 {
		file.Size = int64(len(file.Data))
	}

	req := &models.MediaRequest{
		Module:      module,
		EntityID:    entityID,
		ClientRef:   uuid.NewString(),
		FileName:    file.Name,
		ContentType: file.ContentType,
		Size:        file.Size,
		Metadata:    opts.Metadata,
		QARequired:  opts.QARequired,
	}

	grant, err := s.api.CreateMedia(ctx, opts.AuthToken, req)
	if err != nil {
		s.log.Warn(ctx, "media grant failed, queueing", "module", module, "entity", entityID, "error", err)
		return s.enqueue(ctx, &models.QueuedUpload{
			Module:         module,
			EntityID:       entityID,
			File:           file,
			Phase:          models.PhaseNotStarted,
			RequestPayload: req,
			MediaID:        req.ClientRef,
			Metadata:       opts.Metadata,
			QARequired:     opts.QARequired,
			AuthToken:      opts.AuthToken,
		}, err)
	}

	confirm := &models.ConfirmPayload{
		MediaID:    grant.MediaID,
		Module:     module,
		EntityID:   entityID,
		Metadata:   opts.Metadata,
		QARequired: opts.QARequired,
	}

	if err := s.api.UploadBinary(ctx, grant.UploadURL, grant.Headers, file); err != nil {
		s.log.Warn(ctx, "binary upload failed, queueing", "mediaId", grant.MediaID, "error", err)
		return s.enqueue(ctx, s.grantedRecord(module, entityID, file, grant, confirm, opts), err)
	}

	if _, err := s.api.ConfirmMedia(ctx, opts.AuthToken, confirm); err != nil {
		s.log.Warn(ctx, "confirm failed, queueing", "mediaId", grant.MediaID, "error", err)
		return s.enqueue(ctx, s.grantedRecord(module, entityID, file, grant, confirm, opts), err)
	}

	return &Result{Success: true, OfflineQueued: false, MediaID: grant.MediaID}, nil
}

func (s *Service) grantedRecord(module, entityID string, file models.FilePayload, grant *api.MediaGrant, confirm *models.ConfirmPayload, opts Options) *models.QueuedUpload {
	return &models.QueuedUpload{
		Module:         module,
		EntityID:       entityID,
		File:           file,
		Phase:          models.PhaseDestinationGranted,
		UploadURL:      grant.UploadURL,
		Headers:        grant.Headers,
		ConfirmPayload: confirm,
		MediaID:        grant.MediaID,
		Metadata:       opts.Metadata,
		QARequired:     opts.QARequired,
		AuthToken:      opts.AuthToken,
	}
}

// enqueue persists the record and registers a sync intent. When storage is
// unavailable there is no durability to fall back on, so the original
// network failure is surfaced instead of a silent loss of the file.
func (s *Service) enqueue(ctx context.Context, q *models.QueuedUpload, cause error) (*Result, error) {
	q.ID = uuid.NewString()
	now := time.Now().UTC()
	q.CreatedAt = now
	q.UpdatedAt = now

	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode queued upload: %w", err)
	}

	rec := &store.Record{ID: q.ID, Data: data, CreatedAt: q.CreatedAt}
	if err := s.store.Put(ctx, store.NamespaceUploads, rec); err != nil {
		s.log.Error(ctx, "cannot queue upload, no durability", "error", err)
		return nil, cause
	}

	s.registrar.RegisterIntent(common.SyncTagMediaUploads)
	return &Result{Success: true, OfflineQueued: true, MediaID: q.MediaID}, nil
}

// Pending returns the queued uploads in creation order.
func (s *Service) Pending(ctx context.Context) ([]*models.QueuedUpload, error) {
	recs, err := s.store.List(ctx, store.NamespaceUploads, 0)
	if err != nil {
		return nil, err
	}

	result := make([]*models.QueuedUpload, 0, len(recs))
	for _, r := range recs {
		var q models.QueuedUpload
		if err := json.Unmarshal(r.Data, &q); err != nil {
			s.log.Error(ctx, "skipping undecodable queue record", "id", r.ID, "error", err)
			continue
		}
		result = append(result, &q)
	}
	return result, nil
}

// Replay walks the queue one record at a time. A record is deleted only
// after its full sequence succeeds; a failing record is left untouched for
// the next wake-up and never aborts the rest of the pass.
func (s *Service) Replay(ctx context.Context) error {
	pending, err := s.Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	s.log.Info(ctx, "replaying upload queue", "pending", len(pending))

	var failed int
	for _, q := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		if err := s.replayRecord(ctx, q); err != nil {
			failed++
			s.log.Warn(ctx, "replay failed, record kept", "id", q.ID, "phase", q.Phase, "error", err)
			continue
		}

		if err := s.store.Delete(ctx, store.NamespaceUploads, q.ID); err != nil {
			// the confirm was idempotent, so replaying this record again
			// on the next wake-up is harmless
			s.log.Error(ctx, "replayed but not dequeued", "id", q.ID, "error", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("replay: %d of %d records still pending", failed, len(pending))
	}
	return nil
}

func (s *Service) replayRecord(ctx context.Context, q *models.QueuedUpload) error {
	switch q.Phase {
	case models.PhaseNotStarted:
		// full sequence from the original request; ClientRef lets the
		// backend resolve repeats to the same asset
		grant, err := s.api.CreateMedia(ctx, q.AuthToken, q.RequestPayload)
		if err != nil {
			return err
		}
		if err := s.api.UploadBinary(ctx, grant.UploadURL, grant.Headers, q.File); err != nil {
			return err
		}
		_, err = s.api.ConfirmMedia(ctx, q.AuthToken, &models.ConfirmPayload{
			MediaID:    grant.MediaID,
			Module:     q.Module,
			EntityID:   q.EntityID,
			Metadata:   q.Metadata,
			QARequired: q.QARequired,
		})
		return err

	case models.PhaseDestinationGranted:
		if err := s.api.UploadBinary(ctx, q.UploadURL, q.Headers, q.File); err != nil {
			return err
		}
		_, err := s.api.ConfirmMedia(ctx, q.AuthToken, q.ConfirmPayload)
		return err

	default:
		return fmt.Errorf("%w: unknown phase %q", common.ErrInvalidArgument, q.Phase)
	}
}
