package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identityservice "spothot/internal/identity/service"
	identitystore "spothot/internal/identity/store"
	"spothot/internal/notification"
	referralservice "spothot/internal/referral/service"
	referralstore "spothot/internal/referral/store"
	"spothot/internal/signup"
	"spothot/internal/tasks"
	verificationservice "spothot/internal/verification/service"
	verificationstore "spothot/internal/verification/store"
	waitlistservice "spothot/internal/waitlist/service"
	waitliststore "spothot/internal/waitlist/store"
)

type fixture struct {
	server *httptest.Server
	codes  chan string
}

// codeSink captures challenge codes the way a mailbox would.
type codeSink struct {
	codes chan string
}

func (s *codeSink) Deliver(_ context.Context, msg *notification.Message) error {
	select {
	case s.codes <- msg.Body:
	default:
	}
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	identities := identitystore.NewInMemory()
	identitySvc := identityservice.NewService(identities)
	verificationSvc := verificationservice.NewService(verificationstore.NewInMemory(), identities)
	referralSvc := referralservice.NewService(referralstore.NewInMemory(), identities)
	ranker := waitlistservice.NewService(waitliststore.NewInMemory(), identities)

	worker := tasks.NewWorker()
	signup.RegisterTaskHandlers(worker, ranker)
	dispatcher := tasks.NewMemory(worker, 1)
	t.Cleanup(dispatcher.Close)

	sink := &codeSink{codes: make(chan string, 8)}
	notifier := notification.NewAsync(sink)
	t.Cleanup(notifier.Close)

	svc := signup.NewService(identitySvc, verificationSvc, referralSvc, dispatcher, notifier,
		signup.WithPositionReader(ranker))

	router := chi.NewRouter()
	NewHandler(svc, nil).Register(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &fixture{server: server, codes: sink.codes}
}

func (f *fixture) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSignupFlow(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/signup", map[string]string{
		"name":  "Ada",
		"email": "ada@example.com",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ReferralCode string `json:"referral_code"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Len(t, created.ReferralCode, 8)
}

func TestVerifyFlowEndToEnd(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/signup", map[string]string{
		"name":  "Ada",
		"email": "ada@example.com",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body string
	select {
	case body = <-f.codes:
	case <-time.After(2 * time.Second):
		t.Fatal("challenge email never delivered")
	}
	code := codePattern.FindString(body)
	require.Len(t, code, 6)

	verifyResp := f.post(t, "/verify", map[string]string{"code": code})
	require.Equal(t, http.StatusOK, verifyResp.StatusCode)

	// The tail insert runs through the async dispatcher.
	assert.Eventually(t, func() bool {
		resp, err := http.Get(f.server.URL + "/waitlist/position?email=ada@example.com")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var status struct {
			Listed   bool `json:"listed"`
			Position int  `json:"position"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return false
		}
		return status.Listed && status.Position == 99
	}, 2*time.Second, 20*time.Millisecond)
}

var codePattern = regexp.MustCompile(`\b[0-9A-Za-z]{6}\b`)

func TestSignupValidation(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/signup", map[string]string{"name": "", "email": "nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSignupInvalidReferral(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/signup", map[string]string{
		"name":          "Ada",
		"email":         "ada@example.com",
		"referral_code": "NoSuchCd",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "invalid_referral", body.Code)
}

func TestVerifyUnknownCode(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/verify", map[string]string{"code": "000000"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPositionRequiresEmail(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/waitlist/position")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPositionUnknownEmail(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + fmt.Sprintf("/waitlist/position?email=%s", "nobody@example.com"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
