package steps

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

const creator = "0x00000000000000000000000000000000000000a1"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validSubmission() domain.Submission {
	return domain.Submission{
		Title:       "Sunset timelapse",
		Description: "Shot on the pier",
		ContentType: "video/mp4",
		SizeBytes:   10 << 20,
		SourceURI:   "https://cdn.example.com/uploads/sunset.mp4",
		Tags:        []string{"nature"},
		License:     "CC-BY-4.0",
	}
}

func testJob(t *testing.T, in domain.Submission) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(creator, domain.JobTypeVideo,
		[]string{domain.StepValidate, domain.StepTranscode, domain.StepPin, domain.StepMint, domain.StepIndex}, in, time.Now().UTC())
	require.NoError(t, err)
	return job
}

func TestValidate(t *testing.T) {
	step := NewValidate(ValidationLimits{MaxSizeBytes: 100 << 20, MaxTitleLength: 20, MaxTags: 2})

	tests := []struct {
		name    string
		mutate  func(s *domain.Submission)
		wantErr string
	}{
		{name: "valid submission", mutate: func(*domain.Submission) {}},
		{name: "content type is case insensitive", mutate: func(s *domain.Submission) { s.ContentType = "Video/MP4" }},
		{name: "ipfs source", mutate: func(s *domain.Submission) { s.SourceURI = "ipfs://bafybeigdyr" }},
		{name: "missing title", mutate: func(s *domain.Submission) { s.Title = "  " }, wantErr: "title is required"},
		{name: "title too long", mutate: func(s *domain.Submission) { s.Title = strings.Repeat("a", 21) }, wantErr: "title exceeds"},
		{name: "unsupported type", mutate: func(s *domain.Submission) { s.ContentType = "image/png" }, wantErr: "unsupported content type"},
		{name: "zero size", mutate: func(s *domain.Submission) { s.SizeBytes = 0 }, wantErr: "size must be positive"},
		{name: "too large", mutate: func(s *domain.Submission) { s.SizeBytes = 101 << 20 }, wantErr: "exceeds limit"},
		{name: "bad source", mutate: func(s *domain.Submission) { s.SourceURI = "not a url" }, wantErr: "not a valid url"},
		{name: "bad scheme", mutate: func(s *domain.Submission) { s.SourceURI = "ftp://host/file.mp4" }, wantErr: "scheme"},
		{name: "too many tags", mutate: func(s *domain.Submission) { s.Tags = []string{"a", "b", "c"} }, wantErr: "at most 2 tags"},
		{name: "blank tag", mutate: func(s *domain.Submission) { s.Tags = []string{" "} }, wantErr: "blank"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validSubmission()
			tt.mutate(&in)

			_, err := step.Execute(context.Background(), testJob(t, in))

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
			var permanent *domain.PermanentError
			assert.True(t, errors.As(err, &permanent), "validation failures are permanent")
		})
	}
}

func TestServiceClient_Classification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{name: "server error", status: http.StatusServiceUnavailable, wantTransient: true},
		{name: "bad gateway", status: http.StatusBadGateway, wantTransient: true},
		{name: "rate limited", status: http.StatusTooManyRequests, wantTransient: true},
		{name: "request timeout", status: http.StatusRequestTimeout, wantTransient: true},
		{name: "bad request", status: http.StatusBadRequest, wantTransient: false},
		{name: "payment required", status: http.StatusPaymentRequired, wantTransient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			client := newServiceClient("origin", ServiceConfig{BaseURL: srv.URL}, discardLogger())
			err := client.postJSON(context.Background(), "/v1/ip-nfts", "", map[string]string{}, nil)

			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, domain.IsTransient(err))
			serr, ok := AsServiceError(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, serr.StatusCode)
			assert.Contains(t, serr.Body, "nope")
		})
	}
}

func TestServiceClient_UnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := newServiceClient("pinning", ServiceConfig{BaseURL: url}, discardLogger())
	err := client.postJSON(context.Background(), "/v1/pins", "", map[string]string{}, nil)

	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestServiceClient_MalformedResponseIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := newServiceClient("pinning", ServiceConfig{BaseURL: srv.URL}, discardLogger())
	var out pinResponse
	err := client.postJSON(context.Background(), "/v1/pins", "", map[string]string{}, &out)

	require.Error(t, err)
	var permanent *domain.PermanentError
	assert.True(t, errors.As(err, &permanent))
}

func TestPin_UsesTranscodedRendition(t *testing.T) {
	var got pinRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/pins", r.URL.Path)
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"cid":"bafybeigdyr"}`))
	}))
	defer srv.Close()

	job := testJob(t, validSubmission())
	job.StepResults[domain.StepTranscode] = domain.StepResult{
		Outcome: domain.OutcomeSuccess,
		Output:  map[string]string{domain.OutputMediaURI: "https://media.example.com/sunset.m3u8"},
	}

	step := NewPin(ServiceConfig{BaseURL: srv.URL + "/", APIKey: "pin-key"}, discardLogger())
	out, err := step.Execute(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, "bafybeigdyr", out[domain.OutputCID])
	assert.Equal(t, "ipfs://bafybeigdyr", out[domain.OutputContentURI])
	assert.Equal(t, "https://media.example.com/sunset.m3u8", got.SourceURI)
	assert.Equal(t, job.ID, got.Metadata["job_id"])
	assert.Equal(t, "Bearer pin-key", headers.Get("Authorization"))
	assert.Equal(t, job.ID+":"+domain.StepPin, headers.Get("Idempotency-Key"))
	assert.NotEmpty(t, headers.Get("X-Request-Id"))
}

func TestPin_FallsBackToSourceURI(t *testing.T) {
	var got pinRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"cid":"bafy"}`))
	}))
	defer srv.Close()

	job := testJob(t, validSubmission())
	job.StepResults[domain.StepTranscode] = domain.StepResult{Outcome: domain.OutcomeSkipped}

	_, err := NewPin(ServiceConfig{BaseURL: srv.URL}, discardLogger()).Execute(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, job.Input.SourceURI, got.SourceURI)
}

func TestPin_EmptyCIDIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewPin(ServiceConfig{BaseURL: srv.URL}, discardLogger()).Execute(context.Background(), testJob(t, validSubmission()))

	require.Error(t, err)
	assert.False(t, domain.IsTransient(err))
	assert.Contains(t, err.Error(), "no cid")
}

func TestMint(t *testing.T) {
	var calls atomic.Int32
	var got mintRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/ip-nfts", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"token_id":"1337","tx_hash":"0xfeed"}`))
	}))
	defer srv.Close()

	step := NewMint(ServiceConfig{BaseURL: srv.URL}, discardLogger())

	t.Run("requires pinned content", func(t *testing.T) {
		_, err := step.Execute(context.Background(), testJob(t, validSubmission()))
		require.Error(t, err)
		assert.False(t, domain.IsTransient(err))
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("mints pinned content", func(t *testing.T) {
		job := testJob(t, validSubmission())
		job.StepResults[domain.StepPin] = domain.StepResult{
			Outcome: domain.OutcomeSuccess,
			Output:  map[string]string{domain.OutputContentURI: "ipfs://bafy"},
		}

		out, err := step.Execute(context.Background(), job)

		require.NoError(t, err)
		assert.Equal(t, map[string]string{domain.OutputTokenID: "1337", domain.OutputTxHash: "0xfeed"}, out)
		assert.Equal(t, creator, got.Owner)
		assert.Equal(t, "ipfs://bafy", got.ContentURI)
		assert.Equal(t, "CC-BY-4.0", got.License)
	})
}

func TestOptionalStepsSkipWhenUnconfigured(t *testing.T) {
	job := testJob(t, validSubmission())

	_, err := NewTranscode(ServiceConfig{}, discardLogger()).Execute(context.Background(), job)
	assert.True(t, errors.Is(err, domain.ErrSkipStep))

	_, err = NewIndex(ServiceConfig{}, discardLogger()).Execute(context.Background(), job)
	assert.True(t, errors.Is(err, domain.ErrSkipStep))
}

func TestRequiredStepsFailWhenUnconfigured(t *testing.T) {
	job := testJob(t, validSubmission())

	_, err := NewPin(ServiceConfig{}, discardLogger()).Execute(context.Background(), job)
	require.Error(t, err)
	assert.False(t, domain.IsTransient(err))

	_, err = NewMint(ServiceConfig{}, discardLogger()).Execute(context.Background(), job)
	require.Error(t, err)
	assert.False(t, domain.IsTransient(err))
}

func TestTranscodeAndIndex(t *testing.T) {
	var indexed indexRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/transcode":
			_, _ = w.Write([]byte(`{"media_uri":"https://media.example.com/out.m3u8"}`))
		case "/v1/documents":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&indexed))
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	job := testJob(t, validSubmission())
	cfg := ServiceConfig{BaseURL: srv.URL}

	out, err := NewTranscode(cfg, discardLogger()).Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/out.m3u8", out[domain.OutputMediaURI])

	job.StepResults[domain.StepPin] = domain.StepResult{Outcome: domain.OutcomeSuccess, Output: map[string]string{domain.OutputContentURI: "ipfs://bafy"}}
	job.StepResults[domain.StepMint] = domain.StepResult{Outcome: domain.OutcomeSuccess, Output: map[string]string{domain.OutputTokenID: "7"}}

	_, err = NewIndex(cfg, discardLogger()).Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, job.ID, indexed.ID)
	assert.Equal(t, "ipfs://bafy", indexed.ContentURI)
	assert.Equal(t, "7", indexed.TokenID)
}

func TestAll_RegistersEveryStep(t *testing.T) {
	names := map[string]bool{}
	for _, s := range All(Config{}, discardLogger()) {
		names[s.Name()] = true
	}

	for _, want := range []string{domain.StepValidate, domain.StepTranscode, domain.StepPin, domain.StepMint, domain.StepIndex} {
		assert.True(t, names[want], want)
	}
}
