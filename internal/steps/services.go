package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/pipeline"
)

// Config configures every step of the content pipeline
type Config struct {
	Validation ValidationLimits
	Transcoder ServiceConfig
	Pinning    ServiceConfig
	Origin     ServiceConfig
	Indexer    ServiceConfig
}

// All returns the steps available to pipelines, keyed by their names through Step.Name
func All(cfg Config, logger *slog.Logger) []pipeline.Step {
	return []pipeline.Step{
		NewValidate(cfg.Validation),
		NewTranscode(cfg.Transcoder, logger),
		NewPin(cfg.Pinning, logger),
		NewMint(cfg.Origin, logger),
		NewIndex(cfg.Indexer, logger),
	}
}

// sourceURI is the transcoded rendition when the transcode step produced one
func sourceURI(job *domain.Job) string {
	if uri := job.StepResults[domain.StepTranscode].Output[domain.OutputMediaURI]; uri != "" {
		return uri
	}
	return job.Input.SourceURI
}

func stepOutput(job *domain.Job, step, key string) string {
	return job.StepResults[step].Output[key]
}

// Transcode asks the transcoder for a streamable rendition. Skipped when no transcoder is configured.
type Transcode struct {
	client *serviceClient
}

type transcodeRequest struct {
	JobID       string `json:"job_id"`
	SourceURI   string `json:"source_uri"`
	ContentType string `json:"content_type"`
}

type transcodeResponse struct {
	MediaURI string `json:"media_uri"`
}

// NewTranscode creates a Transcode step
func NewTranscode(cfg ServiceConfig, logger *slog.Logger) *Transcode {
	return &Transcode{client: newServiceClient("transcoder", cfg, logger)}
}

func (s *Transcode) Name() string { return domain.StepTranscode }

func (s *Transcode) Execute(ctx context.Context, job *domain.Job) (map[string]string, error) {
	if !s.client.configured() {
		return nil, fmt.Errorf("%w: transcoder not configured", domain.ErrSkipStep)
	}

	var resp transcodeResponse
	err := s.client.postJSON(ctx, "/v1/transcode", idempotencyKey(job, domain.StepTranscode), transcodeRequest{
		JobID:       job.ID,
		SourceURI:   job.Input.SourceURI,
		ContentType: job.Input.ContentType,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.MediaURI == "" {
		return nil, domain.NewPermanentError(errors.New("transcoder returned no media uri"))
	}

	return map[string]string{domain.OutputMediaURI: resp.MediaURI}, nil
}

// Pin uploads the content to the IPFS pinning service
type Pin struct {
	client *serviceClient
}

type pinRequest struct {
	SourceURI string            `json:"source_uri"`
	Name      string            `json:"name"`
	Metadata  map[string]string `json:"metadata"`
}

type pinResponse struct {
	CID string `json:"cid"`
}

// NewPin creates a Pin step
func NewPin(cfg ServiceConfig, logger *slog.Logger) *Pin {
	return &Pin{client: newServiceClient("pinning", cfg, logger)}
}

func (s *Pin) Name() string { return domain.StepPin }

func (s *Pin) Execute(ctx context.Context, job *domain.Job) (map[string]string, error) {
	if !s.client.configured() {
		return nil, domain.NewPermanentError(errors.New("pinning service not configured"))
	}

	var resp pinResponse
	err := s.client.postJSON(ctx, "/v1/pins", idempotencyKey(job, domain.StepPin), pinRequest{
		SourceURI: sourceURI(job),
		Name:      job.Input.Title,
		Metadata: map[string]string{
			"job_id": job.ID,
			"owner":  job.OwnerIdentity,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.CID == "" {
		return nil, domain.NewPermanentError(errors.New("pinning service returned no cid"))
	}

	return map[string]string{
		domain.OutputCID:        resp.CID,
		domain.OutputContentURI: "ipfs://" + resp.CID,
	}, nil
}

// Mint registers the pinned content as an IP-NFT through the Origin API
type Mint struct {
	client *serviceClient
}

type mintRequest struct {
	Owner       string   `json:"owner"`
	ContentURI  string   `json:"content_uri"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	License     string   `json:"license,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type mintResponse struct {
	TokenID string `json:"token_id"`
	TxHash  string `json:"tx_hash"`
}

// NewMint creates a Mint step
func NewMint(cfg ServiceConfig, logger *slog.Logger) *Mint {
	return &Mint{client: newServiceClient("origin", cfg, logger)}
}

func (s *Mint) Name() string { return domain.StepMint }

func (s *Mint) Execute(ctx context.Context, job *domain.Job) (map[string]string, error) {
	if !s.client.configured() {
		return nil, domain.NewPermanentError(errors.New("origin api not configured"))
	}

	contentURI := stepOutput(job, domain.StepPin, domain.OutputContentURI)
	if contentURI == "" {
		return nil, domain.NewPermanentError(errors.New("no pinned content to mint"))
	}

	var resp mintResponse
	err := s.client.postJSON(ctx, "/v1/ip-nfts", idempotencyKey(job, domain.StepMint), mintRequest{
		Owner:       job.OwnerIdentity,
		ContentURI:  contentURI,
		Title:       job.Input.Title,
		Description: job.Input.Description,
		License:     job.Input.License,
		Tags:        job.Input.Tags,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.TokenID == "" || resp.TxHash == "" {
		return nil, domain.NewPermanentError(errors.New("origin api returned an incomplete mint receipt"))
	}

	return map[string]string{
		domain.OutputTokenID: resp.TokenID,
		domain.OutputTxHash:  resp.TxHash,
	}, nil
}

// Index makes the minted content searchable. Skipped when no indexer is configured.
type Index struct {
	client *serviceClient
}

type indexRequest struct {
	ID          string   `json:"id"`
	Owner       string   `json:"owner"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ContentURI  string   `json:"content_uri"`
	TokenID     string   `json:"token_id,omitempty"`
}

// NewIndex creates an Index step
func NewIndex(cfg ServiceConfig, logger *slog.Logger) *Index {
	return &Index{client: newServiceClient("indexer", cfg, logger)}
}

func (s *Index) Name() string { return domain.StepIndex }

func (s *Index) Execute(ctx context.Context, job *domain.Job) (map[string]string, error) {
	if !s.client.configured() {
		return nil, fmt.Errorf("%w: indexer not configured", domain.ErrSkipStep)
	}

	err := s.client.postJSON(ctx, "/v1/documents", idempotencyKey(job, domain.StepIndex), indexRequest{
		ID:          job.ID,
		Owner:       job.OwnerIdentity,
		Title:       job.Input.Title,
		Description: job.Input.Description,
		Tags:        job.Input.Tags,
		ContentURI:  stepOutput(job, domain.StepPin, domain.OutputContentURI),
		TokenID:     stepOutput(job, domain.StepMint, domain.OutputTokenID),
	}, nil)
	if err != nil {
		return nil, err
	}

	return nil, nil
}
