package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a fake GraphQL endpoint that counts requests and hands each one
// to the test's handler.
type fakeAPI struct {
	srv  *httptest.Server
	hits atomic.Int32
}

func newFakeAPI(t *testing.T, handler http.HandlerFunc) *fakeAPI {
	t.Helper()
	api := &fakeAPI{}
	api.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(api.srv.Close)
	return api
}

func (a *fakeAPI) client() *Client {
	return New(WithBaseURL(a.srv.URL))
}

func decodeGQL(t *testing.T, r *http.Request) gqlRequest {
	t.Helper()
	var req gqlRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func writeData(w http.ResponseWriter, data string) {
	fmt.Fprintf(w, `{"data":%s}`, data)
}

func writeGQLErrors(w http.ResponseWriter, msgs ...string) {
	out := struct {
		Errors []map[string]string `json:"errors"`
	}{}
	for _, m := range msgs {
		out.Errors = append(out.Errors, map[string]string{"message": m})
	}
	json.NewEncoder(w).Encode(out)
}

func TestLoginSuccessStoresToken(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok_abc", r.Header.Get("X-Api-Key"))
		req := decodeGQL(t, r)
		assert.Contains(t, req.Query, "profile")
		writeData(w, `{"profile":{"email":"frog@coqui.ai"}}`)
	})
	c := api.client()

	ok, err := c.Login(context.Background(), "tok_abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, c.IsLoggedIn())

	token, stored := c.Token()
	assert.True(t, stored)
	assert.Equal(t, "tok_abc", token)
	assert.Equal(t, int32(1), api.hits.Load())
}

func TestLoginRejectedTokenStoresNothing(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeGQLErrors(w, "invalid api key")
	})
	c := api.client()

	ok, err := c.Login(context.Background(), "bogus")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, c.IsLoggedIn())
	_, stored := c.Token()
	assert.False(t, stored)
}

func TestLoginOverwritesToken(t *testing.T) {
	var lastKey atomic.Value
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		lastKey.Store(r.Header.Get("X-Api-Key"))
		req := decodeGQL(t, r)
		if strings.Contains(req.Query, "profile") {
			writeData(w, `{"profile":{"email":"frog@coqui.ai"}}`)
			return
		}
		writeData(w, `{"voices":[]}`)
	})
	c := api.client()

	ok, err := c.Login(context.Background(), "tok_old")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = c.Login(context.Background(), "tok_new")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = c.ClonedVoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok_new", lastKey.Load())
}

func TestOperationsWithoutLoginFailFast(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the server")
	})
	c := api.client()
	ctx := context.Background()

	ops := map[string]func() error{
		"ClonedVoices": func() error { _, err := c.ClonedVoices(ctx); return err },
		"CloneVoice":   func() error { _, err := c.CloneVoice(ctx, strings.NewReader("wav"), "x"); return err },
		"ListSamples":  func() error { _, err := c.ListSamples(ctx, "v1"); return err },
		"Synthesize":   func() error { _, err := c.Synthesize(ctx, "v1", "hi", 1.0, "hi"); return err },
		"EstimateQuality": func() error {
			_, err := c.EstimateQuality(ctx, EstimateQualityRequest{AudioURL: "https://example.com/a.wav"})
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			var authErr *AuthenticationError
			require.ErrorAs(t, op(), &authErr)
			assert.Contains(t, authErr.Reason, "not logged in")
		})
	}
	assert.Equal(t, int32(0), api.hits.Load())
}

func TestBlockingEntryInsideAsyncFlowFailsFast(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the server")
	})
	c := api.client()
	c.SetToken("tok_abc")

	f := Go(context.Background(), func(ctx context.Context) ([]ClonedVoice, error) {
		return c.ClonedVoices(ctx) // wrong entry point inside an async flow
	})
	_, err := f.Wait(context.Background())

	var misuse *SchedulerMisuseError
	require.ErrorAs(t, err, &misuse)
	assert.Equal(t, "ClonedVoices", misuse.Op)
	assert.Equal(t, int32(0), api.hits.Load())
}

func TestAsyncEntryInsideAsyncFlowWorks(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{"voices":[]}`)
	})
	c := api.client()
	c.SetToken("tok_abc")

	f := Go(context.Background(), func(ctx context.Context) ([]ClonedVoice, error) {
		return c.ClonedVoicesAsync(ctx).Wait(ctx)
	})
	voices, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, voices)
}

func TestClonedVoicesTwoRecords(t *testing.T) {
	id1, id2 := uuid.NewString(), uuid.NewString()
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, fmt.Sprintf(`{"voices":[
			{"id":%q,"name":"Ada","samples_count":3,"created_at":"2022-06-14T20:15:33.016Z"},
			{"id":%q,"name":"Grace","samples_count":0,"created_at":"2022-07-01T08:00:00.000Z"}
		]}`, id1, id2))
	})
	c := api.client()
	c.SetToken("tok_abc")

	voices, err := c.ClonedVoices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 2)

	assert.Equal(t, id1, voices[0].ID)
	assert.Equal(t, "Ada", voices[0].Name)
	assert.Equal(t, 3, voices[0].SamplesCount)
	assert.Equal(t, time.Date(2022, 6, 14, 20, 15, 33, 16_000_000, time.UTC), voices[0].CreatedAt.UTC())

	assert.Equal(t, id2, voices[1].ID)
	assert.Equal(t, "Grace", voices[1].Name)
	assert.Equal(t, 0, voices[1].SamplesCount)
}

func TestListSamplesEmpty(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeGQL(t, r)
		assert.Equal(t, "v-empty", req.Variables["voice_id"])
		writeData(w, `{"samples":[]}`)
	})
	c := api.client()
	c.SetToken("tok_abc")

	samples, err := c.ListSamples(context.Background(), "v-empty")
	require.NoError(t, err)
	assert.NotNil(t, samples)
	assert.Empty(t, samples)
}

func TestSyncAsyncEquivalence(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{"samples":[
			{"id":"s1","name":"hi","text":"hi there","created_at":"2022-06-14T20:15:33.016Z","audio_url":"https://cdn/s1.wav"}
		]}`)
	})
	c := api.client()
	c.SetToken("tok_abc")
	ctx := context.Background()

	syncSamples, syncErr := c.ListSamples(ctx, "v1")
	asyncSamples, asyncErr := c.ListSamplesAsync(ctx, "v1").Wait(ctx)

	require.NoError(t, syncErr)
	require.NoError(t, asyncErr)
	assert.Equal(t, syncSamples, asyncSamples)
}

func TestSyncAsyncEquivalentErrors(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	})
	c := api.client()
	c.SetToken("tok_abc")
	ctx := context.Background()

	_, syncErr := c.ListSamples(ctx, "v1")
	_, asyncErr := c.ListSamplesAsync(ctx, "v1").Wait(ctx)

	var syncTransport, asyncTransport *TransportError
	require.ErrorAs(t, syncErr, &syncTransport)
	require.ErrorAs(t, asyncErr, &asyncTransport)
	assert.Equal(t, syncTransport.StatusCode, asyncTransport.StatusCode)
}

func TestCloneVoiceUploadsMultipart(t *testing.T) {
	voiceID := uuid.NewString()
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		var ops gqlRequest
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("operations")), &ops))
		assert.Contains(t, ops.Query, "createVoice")
		assert.Equal(t, "My Voice", ops.Variables["name"])
		assert.Nil(t, ops.Variables["voice"])
		assert.JSONEq(t, `{"0":["variables.voice"]}`, r.FormValue("map"))

		file, _, err := r.FormFile("0")
		require.NoError(t, err)
		defer file.Close()
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "fake-wav-bytes", string(content))

		writeData(w, fmt.Sprintf(`{"createVoice":{"errors":null,"voice":
			{"id":%q,"name":"My Voice","created_at":"2022-06-14T20:15:33.016Z"}}}`, voiceID))
	})
	c := api.client()
	c.SetToken("tok_abc")

	voice, err := c.CloneVoice(context.Background(), strings.NewReader("fake-wav-bytes"), "My Voice")
	require.NoError(t, err)
	assert.Equal(t, voiceID, voice.ID)
	assert.Equal(t, "My Voice", voice.Name)
}

func TestCloneVoiceFieldErrors(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{"createVoice":{"errors":[{"field":"voice","errors":["audio too short"]}],"voice":null}}`)
	})
	c := api.client()
	c.SetToken("tok_abc")

	_, err := c.CloneVoice(context.Background(), strings.NewReader("x"), "short")
	var cloneErr *CloneVoiceError
	require.ErrorAs(t, err, &cloneErr)
	assert.Contains(t, err.Error(), "voice: audio too short")
}

func TestCloneVoiceMalformedPayloadKeepsCredential(t *testing.T) {
	malformed := true
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok_abc", r.Header.Get("X-Api-Key"))
		if malformed {
			// voice object with no id
			writeData(w, `{"createVoice":{"errors":null,"voice":{"name":"x"}}}`)
			return
		}
		writeData(w, `{"voices":[]}`)
	})
	c := api.client()
	c.SetToken("tok_abc")

	_, err := c.CloneVoice(context.Background(), strings.NewReader("x"), "x")
	var parseErr *ResponseParseError
	require.ErrorAs(t, err, &parseErr)

	// credential survives the failure and still authenticates the next call
	malformed = false
	_, err = c.ClonedVoices(context.Background())
	require.NoError(t, err)
	token, stored := c.Token()
	assert.True(t, stored)
	assert.Equal(t, "tok_abc", token)
}

func TestCloneVoiceGraphQLErrorIsRateLimit(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeGQLErrors(w, "too many requests")
	})
	c := api.client()
	c.SetToken("tok_abc")

	_, err := c.CloneVoice(context.Background(), strings.NewReader("x"), "x")
	var rateErr *RateLimitExceededError
	require.ErrorAs(t, err, &rateErr)
	assert.Contains(t, err.Error(), "too many requests")
}

func TestSynthesizePollsForAudioURL(t *testing.T) {
	sampleID := uuid.NewString()
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeGQL(t, r)
		if strings.Contains(req.Query, "createSample") {
			assert.Equal(t, "v1", req.Variables["voice_id"])
			assert.Equal(t, "hi there", req.Variables["text"])
			assert.Equal(t, "1.5", req.Variables["speed"])
			writeData(w, fmt.Sprintf(`{"createSample":{"errors":null,"sample":
				{"id":%q,"name":"hi","text":"hi there","created_at":"2022-06-14T20:15:33.016Z","audio_url":null}}}`, sampleID))
			return
		}
		assert.Equal(t, sampleID, req.Variables["id"])
		writeData(w, fmt.Sprintf(`{"sample":
			{"id":%q,"name":"hi","text":"hi there","created_at":"2022-06-14T20:15:33.016Z","audio_url":"https://cdn/sample.wav"}}`, sampleID))
	})
	c := api.client()
	c.SetToken("tok_abc")

	sample, err := c.Synthesize(context.Background(), "v1", "hi there", 1.5, "hi")
	require.NoError(t, err)
	assert.Equal(t, sampleID, sample.ID)
	assert.Equal(t, "https://cdn/sample.wav", sample.AudioURL)
	assert.Equal(t, int32(2), api.hits.Load())
}

func TestSynthesizeFieldErrors(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{"createSample":{"errors":[{"field":"text","errors":["too long"]}],"sample":null}}`)
	})
	c := api.client()
	c.SetToken("tok_abc")

	_, err := c.Synthesize(context.Background(), "v1", strings.Repeat("a", 500), 1.0, "x")
	var synthErr *SynthesisError
	require.ErrorAs(t, err, &synthErr)
	assert.Contains(t, err.Error(), "text: too long")
}

func TestServerErrorSurfacesAsTransportError(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	c := api.client()
	c.SetToken("tok_abc")

	_, err := c.ClonedVoices(context.Background())
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusBadGateway, transportErr.StatusCode)
	assert.Contains(t, transportErr.Body, "bad gateway")
}

func TestUnauthorizedSurfacesAsAuthenticationError(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
	c := api.client()
	c.SetToken("tok_revoked")

	_, err := c.ClonedVoices(context.Background())
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

func TestEstimateQualityFromURL(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeGQL(t, r)
		assert.Equal(t, "https://example.com/ref.wav", req.Variables["url"])
		writeData(w, `{"estimateQuality":{"quality":2.7,"errors":null}}`)
	})
	c := api.client()
	c.SetToken("tok_abc")

	estimate, err := c.EstimateQuality(context.Background(),
		EstimateQualityRequest{AudioURL: "https://example.com/ref.wav"})
	require.NoError(t, err)
	assert.Equal(t, QualityHigh, estimate.Level)
	assert.InDelta(t, 2.7, estimate.Raw, 1e-9)
}

func TestEstimateQualityRequestValidation(t *testing.T) {
	c := New()
	c.SetToken("tok_abc")

	_, err := c.EstimateQuality(context.Background(), EstimateQualityRequest{})
	require.Error(t, err)

	_, err = c.EstimateQuality(context.Background(), EstimateQualityRequest{
		Audio:    strings.NewReader("x"),
		AudioURL: "https://example.com/a.wav",
	})
	require.Error(t, err)
}

func TestDownloadFile(t *testing.T) {
	payload := []byte("RIFF....WAVEdata")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	c := New()
	require.NoError(t, c.DownloadFile(context.Background(), srv.URL, &buf))
	assert.Equal(t, payload, buf.Bytes())
}

func TestDownloadAudioRequiresURL(t *testing.T) {
	var buf bytes.Buffer
	err := Sample{}.DownloadAudio(context.Background(), New(), &buf)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestValidateLoginUsesStoredToken(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok_abc", r.Header.Get("X-Api-Key"))
		writeData(w, `{"profile":{"email":"frog@coqui.ai"}}`)
	})
	c := api.client()

	// nothing stored yet
	ok, err := c.ValidateLogin(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(0), api.hits.Load())

	c.SetToken("tok_abc")
	ok, err = c.ValidateLogin(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, c.IsLoggedIn())

	// second validation is answered from the cached state
	ok, err = c.ValidateLogin(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), api.hits.Load())
}
