// Package coqui is a client for the Coqui hosted text-to-speech API: voice
// cloning, sample synthesis and the listings around them.
//
// Every operation comes in two flavors sharing one implementation: a blocking
// entry point (ClonedVoices, Synthesize, ...) for ordinary control flow, and
// an async one (ClonedVoicesAsync, SynthesizeAsync, ...) returning a Future
// for flows driven by Go. Calling a blocking entry point from inside an async
// flow is detected and rejected with SchedulerMisuseError.
package coqui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://app.coqui.ai"

// synthesizePollInterval paces the wait for the signed audio URL to appear on
// a freshly created sample.
const synthesizePollInterval = 250 * time.Millisecond

// Client is the entry point for all API usage. It holds the one piece of
// process-wide mutable state, the stored API token; sessions are built and
// released per operation, so replacing the token takes effect immediately.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu       sync.RWMutex
	token    string
	loggedIn bool
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Only useful for development.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets the underlying HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New constructs a Client.
func New(opts ...Option) *Client {
	c := &Client{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const profileQuery = `{
	profile {
		email
	}
}`

const voicesQuery = `{
	voices {
		id
		name
		samples_count
		created_at
	}
}`

const createVoiceMutation = `mutation CreateVoice($name: String!, $voice: Upload!) {
	createVoice(name: $name, voice: $voice) {
		errors {
			field
			errors
		}
		voice {
			id
			name
			created_at
		}
	}
}`

const samplesQuery = `query Samples($voice_id: String!) {
	samples(voice_id: $voice_id) {
		id
		name
		text
		created_at
		audio_url
	}
}`

const createSampleMutation = `mutation CreateSample($name: String!, $voice_id: String!, $text: String!, $speed: String!) {
	createSample(name: $name, voice_id: $voice_id, text: $text, speed: $speed) {
		errors {
			field
			errors
		}
		sample {
			id
			name
			text
			created_at
			audio_url
		}
	}
}`

const sampleQuery = `query Sample($id: String!) {
	sample(id: $id) {
		id
		name
		text
		created_at
		audio_url
	}
}`

const estimateQualityQuery = `query EstimateQuality($sample: Upload, $url: String) {
	estimateQuality(sample: $sample, url: $url) {
		quality
		errors
	}
}`

// checkToken runs the profile query with the given token and reports whether
// the service accepts it.
func (c *Client) checkToken(ctx context.Context, token string) (bool, error) {
	err := c.withSession(token, func(s *session) error {
		var out struct {
			Profile struct {
				Email string `json:"email"`
			} `json:"profile"`
		}
		return s.execute(ctx, "Login", profileQuery, nil, &out)
	})
	var gqlErr *graphQLError
	if errors.As(err, &gqlErr) {
		return false, nil
	}
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) loginOp(ctx context.Context, token string) (bool, error) {
	ok, err := c.checkToken(ctx, token)
	if err != nil || !ok {
		return false, err
	}
	c.markLoggedIn(token)
	return true, nil
}

// Login validates the token against the service and, on success, stores it
// for all later operations. A rejected token returns (false, nil); transport
// failures surface as errors.
func (c *Client) Login(ctx context.Context, token string) (bool, error) {
	return runSync(ctx, "Login", func(ctx context.Context) (bool, error) {
		return c.loginOp(ctx, token)
	})
}

// LoginAsync is Login for async flows.
func (c *Client) LoginAsync(ctx context.Context, token string) *Future[bool] {
	return Go(ctx, func(ctx context.Context) (bool, error) {
		return c.loginOp(ctx, token)
	})
}

func (c *Client) validateLoginOp(ctx context.Context) (bool, error) {
	if c.IsLoggedIn() {
		return true, nil
	}
	token, ok := c.Token()
	if !ok {
		return false, nil
	}
	valid, err := c.checkToken(ctx, token)
	if err != nil || !valid {
		return false, err
	}
	c.markLoggedIn(token)
	return true, nil
}

// ValidateLogin reports whether the stored token is accepted by the service,
// without replacing it.
func (c *Client) ValidateLogin(ctx context.Context) (bool, error) {
	return runSync(ctx, "ValidateLogin", c.validateLoginOp)
}

// ValidateLoginAsync is ValidateLogin for async flows.
func (c *Client) ValidateLoginAsync(ctx context.Context) *Future[bool] {
	return Go(ctx, c.validateLoginOp)
}

func (c *Client) clonedVoicesOp(ctx context.Context) ([]ClonedVoice, error) {
	var voices []ClonedVoice
	err := c.withAuthedSession(func(s *session) error {
		var out struct {
			Voices []voicePayload `json:"voices"`
		}
		if err := s.execute(ctx, "ClonedVoices", voicesQuery, nil, &out); err != nil {
			return err
		}
		voices = make([]ClonedVoice, 0, len(out.Voices))
		for _, p := range out.Voices {
			v, err := p.toVoice("ClonedVoices")
			if err != nil {
				return err
			}
			voices = append(voices, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return voices, nil
}

// ClonedVoices returns the account's cloned voices, in the order the service
// reports them.
func (c *Client) ClonedVoices(ctx context.Context) ([]ClonedVoice, error) {
	return runSync(ctx, "ClonedVoices", c.clonedVoicesOp)
}

// ClonedVoicesAsync is ClonedVoices for async flows.
func (c *Client) ClonedVoicesAsync(ctx context.Context) *Future[[]ClonedVoice] {
	return Go(ctx, c.clonedVoicesOp)
}

func (c *Client) cloneVoiceOp(ctx context.Context, audio io.Reader, name string) (ClonedVoice, error) {
	var voice ClonedVoice
	err := c.withAuthedSession(func(s *session) error {
		var out struct {
			CreateVoice *struct {
				Errors []FieldError  `json:"errors"`
				Voice  *voicePayload `json:"voice"`
			} `json:"createVoice"`
		}
		err := s.executeUpload(ctx, "CloneVoice", createVoiceMutation,
			map[string]any{"name": name}, "voice", "voice.wav", audio, &out)
		var gqlErr *graphQLError
		if errors.As(err, &gqlErr) {
			return &RateLimitExceededError{Err: gqlErr}
		}
		if err != nil {
			return err
		}
		if out.CreateVoice == nil {
			return &ResponseParseError{Op: "CloneVoice", Err: errors.New("response has no createVoice payload")}
		}
		if len(out.CreateVoice.Errors) > 0 {
			return &CloneVoiceError{Fields: out.CreateVoice.Errors}
		}
		if out.CreateVoice.Voice == nil {
			return &ResponseParseError{Op: "CloneVoice", Err: errors.New("createVoice payload has no voice")}
		}
		v, err := out.CreateVoice.Voice.toVoice("CloneVoice")
		if err != nil {
			return err
		}
		voice = v
		return nil
	})
	return voice, err
}

// CloneVoice creates a new cloned voice from reference audio.
func (c *Client) CloneVoice(ctx context.Context, audio io.Reader, name string) (ClonedVoice, error) {
	return runSync(ctx, "CloneVoice", func(ctx context.Context) (ClonedVoice, error) {
		return c.cloneVoiceOp(ctx, audio, name)
	})
}

// CloneVoiceAsync is CloneVoice for async flows.
func (c *Client) CloneVoiceAsync(ctx context.Context, audio io.Reader, name string) *Future[ClonedVoice] {
	return Go(ctx, func(ctx context.Context) (ClonedVoice, error) {
		return c.cloneVoiceOp(ctx, audio, name)
	})
}

func (c *Client) listSamplesOp(ctx context.Context, voiceID string) ([]Sample, error) {
	var samples []Sample
	err := c.withAuthedSession(func(s *session) error {
		var out struct {
			Samples []samplePayload `json:"samples"`
		}
		vars := map[string]any{"voice_id": voiceID}
		if err := s.execute(ctx, "ListSamples", samplesQuery, vars, &out); err != nil {
			return err
		}
		samples = make([]Sample, 0, len(out.Samples))
		for _, p := range out.Samples {
			sm, err := p.toSample("ListSamples")
			if err != nil {
				return err
			}
			samples = append(samples, sm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// ListSamples returns the samples synthesized with the given cloned voice. A
// voice with no samples yields an empty list, not an error.
func (c *Client) ListSamples(ctx context.Context, voiceID string) ([]Sample, error) {
	return runSync(ctx, "ListSamples", func(ctx context.Context) ([]Sample, error) {
		return c.listSamplesOp(ctx, voiceID)
	})
}

// ListSamplesAsync is ListSamples for async flows.
func (c *Client) ListSamplesAsync(ctx context.Context, voiceID string) *Future[[]Sample] {
	return Go(ctx, func(ctx context.Context) ([]Sample, error) {
		return c.listSamplesOp(ctx, voiceID)
	})
}

func (c *Client) synthesizeOp(ctx context.Context, voiceID, text string, speed float64, name string) (Sample, error) {
	var sample Sample
	err := c.withAuthedSession(func(s *session) error {
		var out struct {
			CreateSample *struct {
				Errors []FieldError   `json:"errors"`
				Sample *samplePayload `json:"sample"`
			} `json:"createSample"`
		}
		vars := map[string]any{
			"voice_id": voiceID,
			"text":     text,
			"speed":    strconv.FormatFloat(speed, 'f', -1, 64),
			"name":     name,
		}
		err := s.execute(ctx, "Synthesize", createSampleMutation, vars, &out)
		var gqlErr *graphQLError
		if errors.As(err, &gqlErr) {
			return &RateLimitExceededError{Err: gqlErr}
		}
		if err != nil {
			return err
		}
		if out.CreateSample == nil {
			return &ResponseParseError{Op: "Synthesize", Err: errors.New("response has no createSample payload")}
		}
		if len(out.CreateSample.Errors) > 0 {
			return &SynthesisError{Fields: out.CreateSample.Errors}
		}
		if out.CreateSample.Sample == nil {
			return &ResponseParseError{Op: "Synthesize", Err: errors.New("createSample payload has no sample")}
		}
		sm, err := out.CreateSample.Sample.toSample("Synthesize")
		if err != nil {
			return err
		}

		// The signed URL shows up a moment after creation; poll until the
		// sample carries it.
		for sm.AudioURL == "" {
			select {
			case <-ctx.Done():
				return &TransportError{Op: "Synthesize", Err: ctx.Err()}
			case <-time.After(synthesizePollInterval):
			}
			var polled struct {
				Sample *samplePayload `json:"sample"`
			}
			if err := s.execute(ctx, "Synthesize", sampleQuery, map[string]any{"id": sm.ID}, &polled); err != nil {
				return err
			}
			if polled.Sample == nil {
				return &ResponseParseError{Op: "Synthesize", Err: errors.New("sample payload missing while polling")}
			}
			sm, err = polled.Sample.toSample("Synthesize")
			if err != nil {
				return err
			}
		}
		sample = sm
		return nil
	})
	return sample, err
}

// Synthesize creates a speech sample with an existing cloned voice and waits
// for its signed audio URL to become available. Speed runs from just above
// 0.0 (slowest) to 2.0 (fastest); 1.0 is the natural rate.
func (c *Client) Synthesize(ctx context.Context, voiceID, text string, speed float64, name string) (Sample, error) {
	return runSync(ctx, "Synthesize", func(ctx context.Context) (Sample, error) {
		return c.synthesizeOp(ctx, voiceID, text, speed, name)
	})
}

// SynthesizeAsync is Synthesize for async flows.
func (c *Client) SynthesizeAsync(ctx context.Context, voiceID, text string, speed float64, name string) *Future[Sample] {
	return Go(ctx, func(ctx context.Context) (Sample, error) {
		return c.synthesizeOp(ctx, voiceID, text, speed, name)
	})
}

// EstimateQualityRequest selects the audio whose quality should be estimated.
// Exactly one of Audio or AudioURL must be set.
type EstimateQualityRequest struct {
	Audio    io.Reader
	Filename string // optional name for uploaded audio, defaults to sample.wav
	AudioURL string // publicly reachable URL instead of an upload
}

func (c *Client) estimateQualityOp(ctx context.Context, req EstimateQualityRequest) (QualityEstimate, error) {
	if (req.Audio == nil) == (req.AudioURL == "") {
		return QualityEstimate{}, fmt.Errorf("coqui: must specify exactly one of Audio or AudioURL")
	}
	var estimate QualityEstimate
	err := c.withAuthedSession(func(s *session) error {
		var out struct {
			EstimateQuality *struct {
				Quality float64  `json:"quality"`
				Errors  []string `json:"errors"`
			} `json:"estimateQuality"`
		}
		var err error
		if req.AudioURL != "" {
			vars := map[string]any{"url": req.AudioURL}
			err = s.execute(ctx, "EstimateQuality", estimateQualityQuery, vars, &out)
		} else {
			filename := req.Filename
			if filename == "" {
				filename = "sample.wav"
			}
			err = s.executeUpload(ctx, "EstimateQuality", estimateQualityQuery,
				map[string]any{}, "sample", filename, req.Audio, &out)
		}
		var gqlErr *graphQLError
		if errors.As(err, &gqlErr) {
			return &RateLimitExceededError{Err: gqlErr}
		}
		if err != nil {
			return err
		}
		if out.EstimateQuality == nil {
			return &ResponseParseError{Op: "EstimateQuality", Err: errors.New("response has no estimateQuality payload")}
		}
		if len(out.EstimateQuality.Errors) > 0 {
			return &EstimateQualityError{Messages: out.EstimateQuality.Errors}
		}
		estimate = QualityEstimate{
			Level: levelForQuality(out.EstimateQuality.Quality),
			Raw:   out.EstimateQuality.Quality,
		}
		return nil
	})
	return estimate, err
}

// EstimateQuality reports how well a piece of audio would work as a voice
// cloning reference.
func (c *Client) EstimateQuality(ctx context.Context, req EstimateQualityRequest) (QualityEstimate, error) {
	return runSync(ctx, "EstimateQuality", func(ctx context.Context) (QualityEstimate, error) {
		return c.estimateQualityOp(ctx, req)
	})
}

// EstimateQualityAsync is EstimateQuality for async flows.
func (c *Client) EstimateQualityAsync(ctx context.Context, req EstimateQualityRequest) *Future[QualityEstimate] {
	return Go(ctx, func(ctx context.Context) (QualityEstimate, error) {
		return c.estimateQualityOp(ctx, req)
	})
}
