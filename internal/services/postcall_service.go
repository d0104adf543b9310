package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/yoockh/callrelay/internal/cache"
	"github.com/yoockh/callrelay/internal/models"
	"github.com/yoockh/callrelay/internal/providers/llm"
	"github.com/yoockh/callrelay/internal/providers/webhook"
	mongorepo "github.com/yoockh/callrelay/internal/repositories/mongo"
	pgrepo "github.com/yoockh/callrelay/internal/repositories/postgres"
	"github.com/yoockh/callrelay/internal/storage"
	"github.com/yoockh/callrelay/internal/utils"
)

const (
	WebhookSent    = "sent"
	WebhookFailed  = "failed"
	WebhookSkipped = "skipped"
)

// TestPayload is what TestWebhook delivers.
var TestPayload = models.CustomerDetails{
	CustomerName:         "Test User",
	CustomerAvailability: "2025-04-22T10:00:00+05:30",
	SpecialNotes:         "This is a test webhook call to verify the endpoint",
}

type PostCallService interface {
	// Process is best-effort: every failure is logged and swallowed.
	Process(ctx context.Context, pc models.PostCall)
	TestWebhook(ctx context.Context, url string) error
	Summary(ctx context.Context, sessionID string) (*models.CustomerDetails, error)
	Call(ctx context.Context, sessionID string) (*models.CallRecord, error)
	RecentCalls(ctx context.Context, limit int64) ([]models.CallRecord, error)
}

// PostCallDeps lists the collaborators; only Extractor and Webhook are
// needed for extraction and delivery, the rest archive when non-nil.
type PostCallDeps struct {
	Extractor llm.Extractor
	Webhook   webhook.Sender

	Cache     cache.Cache
	Publisher cache.Publisher
	Calls     mongorepo.CallRepository
	Summaries pgrepo.SummaryRepo
	Uploader  storage.Uploader

	SummaryTTL time.Duration
	RecordTTL  time.Duration
	Logger     *logrus.Logger
}

type postCallService struct {
	d PostCallDeps
}

func NewPostCallService(d PostCallDeps) PostCallService {
	if d.SummaryTTL <= 0 {
		d.SummaryTTL = 24 * time.Hour
	}
	if d.RecordTTL <= 0 {
		d.RecordTTL = 30 * 24 * time.Hour
	}
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	return &postCallService{d: d}
}

func (s *postCallService) Process(ctx context.Context, pc models.PostCall) {
	log := s.d.Logger.WithField("session_id", pc.SessionID)
	log.Info("starting transcript processing")

	rec := &models.CallRecord{
		SessionID:     pc.SessionID,
		CallSID:       pc.CallSID,
		StreamSID:     pc.StreamSID,
		Transcript:    pc.Lines,
		WebhookStatus: WebhookSkipped,
		StartedAt:     pc.StartedAt,
		EndedAt:       pc.EndedAt,
	}
	if d := int64(pc.EndedAt.Sub(pc.StartedAt).Seconds()); d > 0 {
		rec.DurationSeconds = d
	}
	rec.ExpiresAt = pc.EndedAt.Add(s.d.RecordTTL)

	details, raw := s.extract(ctx, log, pc.Transcript)
	if details != nil {
		rec.Details = details
		rec.WebhookStatus = s.deliver(ctx, log, pc.WebhookURL, details)
		s.remember(ctx, log, pc, details, raw)
	}

	s.archive(ctx, log, rec, pc.Transcript)

	if s.d.Publisher != nil {
		status := map[string]any{"type": "status", "status": "ended", "webhook": rec.WebhookStatus}
		if err := s.d.Publisher.Publish(ctx, cache.StatusChannel(pc.SessionID), status); err != nil {
			log.WithError(err).Warn("publish call status failed")
		}
	}
}

func (s *postCallService) extract(ctx context.Context, log *logrus.Entry, transcript string) (*models.CustomerDetails, []byte) {
	if strings.TrimSpace(transcript) == "" {
		log.Warn("empty transcript, skipping extraction")
		return nil, nil
	}
	if s.d.Extractor == nil {
		log.Warn("no extractor configured")
		return nil, nil
	}

	details, raw, err := s.d.Extractor.Extract(ctx, transcript)
	if err != nil {
		log.WithError(err).WithField("error_kind", "downstream").Error("extraction failed")
		return nil, nil
	}
	log.WithField("details", details).Info("extracted customer details")
	return details, raw
}

func (s *postCallService) deliver(ctx context.Context, log *logrus.Entry, url string, details *models.CustomerDetails) string {
	if url == "" {
		log.Warn("WEBHOOK_URL not configured, skipping delivery")
		return WebhookSkipped
	}
	if s.d.Webhook == nil {
		return WebhookSkipped
	}
	if err := s.d.Webhook.Send(ctx, url, details); err != nil {
		log.WithError(err).WithField("error_kind", "downstream").Error("failed to send data to webhook")
		return WebhookFailed
	}
	log.Info("data successfully sent to webhook")
	return WebhookSent
}

func (s *postCallService) remember(ctx context.Context, log *logrus.Entry, pc models.PostCall, details *models.CustomerDetails, raw []byte) {
	if s.d.Cache != nil {
		if err := s.d.Cache.SetJSON(ctx, cache.SummaryKey(pc.SessionID), details, s.d.SummaryTTL); err != nil {
			log.WithError(err).Warn("cache summary failed")
		}
	}
	if s.d.Summaries != nil {
		if len(raw) == 0 || !json.Valid(raw) {
			raw, _ = json.Marshal(details)
		}
		row := &models.CallSummary{
			ID:                   uuid.NewString(),
			SessionID:            pc.SessionID,
			CustomerName:         details.CustomerName,
			CustomerAvailability: details.CustomerAvailability,
			SpecialNotes:         details.SpecialNotes,
			Transcript:           pc.Transcript,
			Raw:                  datatypes.JSON(raw),
			CreatedAt:            time.Now().UTC(),
		}
		if err := s.d.Summaries.Insert(ctx, row); err != nil {
			log.WithError(err).Warn("store summary failed")
		}
	}
}

func (s *postCallService) archive(ctx context.Context, log *logrus.Entry, rec *models.CallRecord, transcript string) {
	if s.d.Calls != nil {
		if err := s.d.Calls.Insert(ctx, rec); err != nil {
			log.WithError(err).Warn("archive call record failed")
		}
	}
	if s.d.Uploader != nil && transcript != "" {
		path, err := s.d.Uploader.Upload(ctx, storage.TranscriptObject(rec.SessionID), "text/plain; charset=utf-8", strings.NewReader(transcript))
		if err != nil {
			log.WithError(err).Warn("upload transcript failed")
			return
		}
		log.WithField("path", path).Debug("transcript uploaded")
	}
}

func (s *postCallService) TestWebhook(ctx context.Context, url string) error {
	const op = "PostCallService.TestWebhook"

	if url == "" {
		return utils.E(utils.CodeInvalidArgument, op, "WEBHOOK_URL not configured in environment variables", nil)
	}
	if s.d.Webhook == nil {
		return utils.E(utils.CodeUnavailable, op, "webhook sender not configured", nil)
	}
	s.d.Logger.Info("sending test data to webhook")
	if err := s.d.Webhook.Send(ctx, url, TestPayload); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to test webhook", err)
	}
	return nil
}

func (s *postCallService) Summary(ctx context.Context, sessionID string) (*models.CustomerDetails, error) {
	const op = "PostCallService.Summary"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	if s.d.Cache != nil {
		var out models.CustomerDetails
		hit, err := s.d.Cache.GetJSON(ctx, cache.SummaryKey(sessionID), &out)
		if err != nil {
			s.d.Logger.WithError(err).Warn("summary cache read failed")
		} else if hit {
			return &out, nil
		}
	}

	if s.d.Summaries != nil {
		row, err := s.d.Summaries.GetBySessionID(ctx, sessionID)
		if err == nil {
			return &models.CustomerDetails{
				CustomerName:         row.CustomerName,
				CustomerAvailability: row.CustomerAvailability,
				SpecialNotes:         row.SpecialNotes,
			}, nil
		}
		if !errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeInternal, op, "failed to load summary", err)
		}
	}

	return nil, utils.E(utils.CodeNotFound, op, "summary not found", nil)
}

func (s *postCallService) Call(ctx context.Context, sessionID string) (*models.CallRecord, error) {
	const op = "PostCallService.Call"

	if s.d.Calls == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "call archive not configured", nil)
	}
	rec, err := s.d.Calls.GetBySessionID(ctx, sessionID)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeNotFound, op, "call not found", err)
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load call", err)
	}
	return rec, nil
}

func (s *postCallService) RecentCalls(ctx context.Context, limit int64) ([]models.CallRecord, error) {
	const op = "PostCallService.RecentCalls"

	if s.d.Calls == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "call archive not configured", nil)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	out, err := s.d.Calls.ListRecent(ctx, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list calls", err)
	}
	return out, nil
}
