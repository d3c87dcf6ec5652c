package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"briefd/internal/fetcher"
	"briefd/internal/model"
	"briefd/internal/urlutil"
)

// BriefWriter is the brief persistence surface the service needs.
type BriefWriter interface {
	Create(ctx context.Context, b *model.Brief) error
	FindByID(ctx context.Context, id string) (*model.Brief, error)
}

// SourceWriter is the source persistence surface the service needs.
type SourceWriter interface {
	Create(ctx context.Context, s *model.Source) error
	ExistsByBriefAndURL(ctx context.Context, briefID, url string) (bool, error)
}

// BriefService is the creation/validation path exposed to the surrounding
// API layer. It owns the type-specific rules for adding sources to a brief.
type BriefService struct {
	briefs      BriefWriter
	sources     SourceWriter
	registry    *fetcher.Registry
	emailDomain string
	logger      *zap.Logger
}

func NewBriefService(
	briefs BriefWriter,
	sources SourceWriter,
	registry *fetcher.Registry,
	emailDomain string,
	logger *zap.Logger,
) *BriefService {
	return &BriefService{
		briefs:      briefs,
		sources:     sources,
		registry:    registry,
		emailDomain: emailDomain,
		logger:      logger,
	}
}

type CreateBriefInput struct {
	OwnerID      string
	Criteria     string
	Frequency    model.BriefFrequency
	ScheduleTime string
	ScheduleDay  *time.Weekday
	Timezone     string
}

func (s *BriefService) CreateBrief(ctx context.Context, in CreateBriefInput) (*model.Brief, error) {
	if in.OwnerID == "" {
		return nil, fmt.Errorf("owner is required")
	}
	if strings.TrimSpace(in.Criteria) == "" {
		return nil, fmt.Errorf("interest criteria are required")
	}
	if in.Frequency != model.FrequencyDaily && in.Frequency != model.FrequencyWeekly {
		return nil, fmt.Errorf("frequency must be DAILY or WEEKLY")
	}
	if _, err := time.Parse("15:04", in.ScheduleTime); err != nil {
		return nil, fmt.Errorf("schedule time must be HH:MM: %w", err)
	}
	if in.ScheduleDay != nil && (*in.ScheduleDay < time.Sunday || *in.ScheduleDay > time.Saturday) {
		return nil, fmt.Errorf("schedule day must be 0 (Sunday) through 6 (Saturday)")
	}
	// An unknown timezone is accepted and evaluated as UTC at schedule time,
	// but a blatantly empty one gets the explicit default.
	tz := in.Timezone
	if tz == "" {
		tz = "UTC"
	}

	day := in.ScheduleDay
	if in.Frequency == model.FrequencyDaily {
		// DAILY ignores day-of-week.
		day = nil
	}

	b := &model.Brief{
		ID:           uuid.NewString(),
		OwnerID:      in.OwnerID,
		Criteria:     in.Criteria,
		Frequency:    in.Frequency,
		ScheduleTime: in.ScheduleTime,
		ScheduleDay:  day,
		Timezone:     tz,
		Status:       model.BriefStatusActive,
	}
	if err := s.briefs.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create brief: %w", err)
	}
	return b, nil
}

type AddSourceInput struct {
	Type                   model.SourceType
	Name                   string
	URL                    string
	RefreshIntervalMinutes int
}

// AddSource validates and creates a source under a brief. EMAIL sources need
// a name and get a generated inbound address; every other type needs a URL
// (or identifier) accepted by its fetcher's Validate.
func (s *BriefService) AddSource(ctx context.Context, briefID string, in AddSourceInput) (*model.Source, error) {
	if _, err := s.briefs.FindByID(ctx, briefID); err != nil {
		return nil, fmt.Errorf("brief not found: %w", err)
	}

	src := &model.Source{
		ID:                     uuid.NewString(),
		BriefID:                briefID,
		Type:                   in.Type,
		Name:                   in.Name,
		Status:                 model.SourceStatusActive,
		FetchStatus:            model.FetchStatusIdle,
		RefreshIntervalMinutes: in.RefreshIntervalMinutes,
	}

	switch in.Type {
	case model.SourceTypeEmail:
		if strings.TrimSpace(in.Name) == "" {
			return nil, fmt.Errorf("EMAIL sources require a name")
		}
		// EMAIL sources are passive: never scheduler-queued.
		src.RefreshIntervalMinutes = 0
		src.EmailAddress = s.generateEmailAddress()
		src.URL = "mailto:" + src.EmailAddress

	case model.SourceTypeFeed, model.SourceTypeSocialLink, model.SourceTypeWeb:
		if strings.TrimSpace(in.URL) == "" {
			return nil, fmt.Errorf("%s sources require a url", in.Type)
		}
		f, err := s.registry.Get(in.Type)
		if err != nil {
			return nil, err
		}
		if err := f.Validate(ctx, in.URL); err != nil {
			return nil, fmt.Errorf("source validation failed: %w", err)
		}
		src.URL = urlutil.Normalize(in.URL)
		if src.RefreshIntervalMinutes <= 0 {
			src.RefreshIntervalMinutes = 60
		}

		exists, err := s.sources.ExistsByBriefAndURL(ctx, briefID, src.URL)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("source %s already exists on this brief", src.URL)
		}

	default:
		return nil, fmt.Errorf("unknown source type %q", in.Type)
	}

	if err := s.sources.Create(ctx, src); err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}

	s.logger.Info("Source added",
		zap.String("brief_id", briefID),
		zap.String("source_id", src.ID),
		zap.String("type", string(src.Type)),
	)
	return src, nil
}

// generateEmailAddress builds the opaque inbound routing token. The local
// part is unguessable; the domain is the deployment's inbound MX.
func (s *BriefService) generateEmailAddress() string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return token + "@" + s.emailDomain
}
