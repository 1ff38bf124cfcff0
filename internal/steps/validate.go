package steps

import (
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

// Default validation limits
const (
	DefaultMaxSizeBytes   = 2 << 30
	DefaultMaxTitleLength = 200
	DefaultMaxTags        = 20
)

// DefaultContentTypes are accepted when no list is configured
var DefaultContentTypes = []string{"video/mp4", "video/webm", "video/quicktime"}

// ValidationLimits bound what a submission may contain
type ValidationLimits struct {
	MaxSizeBytes   int64
	MaxTitleLength int
	MaxTags        int
	ContentTypes   []string
}

func (l ValidationLimits) withDefaults() ValidationLimits {
	if l.MaxSizeBytes <= 0 {
		l.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if l.MaxTitleLength <= 0 {
		l.MaxTitleLength = DefaultMaxTitleLength
	}
	if l.MaxTags <= 0 {
		l.MaxTags = DefaultMaxTags
	}
	if len(l.ContentTypes) == 0 {
		l.ContentTypes = DefaultContentTypes
	}
	return l
}

// Validate checks the submission locally. Every failure is permanent.
type Validate struct {
	limits ValidationLimits
}

// NewValidate creates a Validate step
func NewValidate(limits ValidationLimits) *Validate {
	return &Validate{limits: limits.withDefaults()}
}

func (s *Validate) Name() string { return domain.StepValidate }

func (s *Validate) Execute(_ context.Context, job *domain.Job) (map[string]string, error) {
	if err := s.check(job.Input); err != nil {
		return nil, domain.NewPermanentError(err)
	}
	return map[string]string{"content_type": strings.ToLower(job.Input.ContentType)}, nil
}

func (s *Validate) check(in domain.Submission) error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.InvalidInputf("title is required")
	}
	if utf8.RuneCountInString(title) > s.limits.MaxTitleLength {
		return domain.InvalidInputf("title exceeds %d characters", s.limits.MaxTitleLength)
	}

	if !s.allowedType(in.ContentType) {
		return domain.InvalidInputf("unsupported content type %q", in.ContentType)
	}

	if in.SizeBytes <= 0 {
		return domain.InvalidInputf("size must be positive")
	}
	if in.SizeBytes > s.limits.MaxSizeBytes {
		return domain.InvalidInputf("size %d exceeds limit of %d bytes", in.SizeBytes, s.limits.MaxSizeBytes)
	}

	u, err := url.Parse(in.SourceURI)
	if err != nil || u.Host == "" {
		return domain.InvalidInputf("source uri %q is not a valid url", in.SourceURI)
	}
	switch u.Scheme {
	case "http", "https", "ipfs":
	default:
		return domain.InvalidInputf("source uri scheme %q is not supported", u.Scheme)
	}

	if len(in.Tags) > s.limits.MaxTags {
		return domain.InvalidInputf("at most %d tags are allowed", s.limits.MaxTags)
	}
	for _, tag := range in.Tags {
		if strings.TrimSpace(tag) == "" {
			return domain.InvalidInputf("tags must not be blank")
		}
	}

	return nil
}

func (s *Validate) allowedType(contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	for _, t := range s.limits.ContentTypes {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}
