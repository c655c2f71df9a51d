package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/logging"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
)

func testEmailConfig() EmailConfig {
	return EmailConfig{
		SMTPServer: "smtp.example.com",
		SMTPPort:   587,
		Username:   "buddy@example.com",
		Password:   "secret",
		To:         "oncall@example.com",
	}
}

func TestNewEmailNotifier_Validates(t *testing.T) {
	logger := logging.NewWithWriter(io.Discard, "info")
	cfg := testEmailConfig()
	cfg.Password = ""
	_, err := NewEmailNotifier(cfg, logger)
	assert.Error(t, err)

	cfg = testEmailConfig()
	cfg.To = ""
	_, err = NewEmailNotifier(cfg, logger)
	assert.Error(t, err)
}

func TestEmailNotifier_SendReminder(t *testing.T) {
	n, err := NewEmailNotifier(testEmailConfig(), logging.NewWithWriter(io.Discard, "info"))
	require.NoError(t, err)
	assert.Equal(t, "email", n.Name())

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	n.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	err = n.SendReminder(context.Background(), models.Reminder{
		UnreadCount: 2,
		PerChannel:  map[string]int{"db-01": 2},
		IssuedAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "buddy@example.com", gotFrom)
	assert.Equal(t, []string{"oncall@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [Alert Buddy] 2 unread alerts\r\n")
	assert.Contains(t, gotMsg, "db-01: 2\r\n")
}

func TestEmailNotifier_SendFailure(t *testing.T) {
	n, err := NewEmailNotifier(testEmailConfig(), logging.NewWithWriter(io.Discard, "info"))
	require.NoError(t, err)

	var calls int32
	n.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("connection refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = n.SendReminder(ctx, models.Reminder{UnreadCount: 1})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewSMSNotifier_Validates(t *testing.T) {
	logger := logging.NewWithWriter(io.Discard, "info")
	_, err := NewSMSNotifier(SMSConfig{AccountSID: "AC1", AuthToken: "tok", ToNumber: "+100"}, logger)
	assert.Error(t, err)
	_, err = NewSMSNotifier(SMSConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+200"}, logger)
	assert.Error(t, err)
}

func TestSMSNotifier_SendReminder(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC1", user)
		assert.Equal(t, "tok", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "+100", r.PostForm.Get("To"))
		assert.Equal(t, "+200", r.PostForm.Get("From"))
		assert.True(t, strings.HasPrefix(r.PostForm.Get("Body"), "4 unread alerts"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	n, err := NewSMSNotifier(SMSConfig{
		AccountSID: "AC1",
		AuthToken:  "tok",
		FromNumber: "+200",
		ToNumber:   "+100",
		BaseURL:    srv.URL,
	}, logging.NewWithWriter(io.Discard, "info"))
	require.NoError(t, err)
	assert.Equal(t, "sms", n.Name())

	require.NoError(t, n.SendReminder(context.Background(), models.Reminder{UnreadCount: 4}))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestSMSNotifier_RejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	n, err := NewSMSNotifier(SMSConfig{
		AccountSID: "AC1",
		AuthToken:  "bad",
		FromNumber: "+200",
		ToNumber:   "+100",
		BaseURL:    srv.URL,
	}, logging.NewWithWriter(io.Discard, "info"))
	require.NoError(t, err)

	err = n.send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestSMSNotifier_TruncatesBody(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		body = r.PostForm.Get("Body")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	n, err := NewSMSNotifier(SMSConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+200", ToNumber: "+100", BaseURL: srv.URL},
		logging.NewWithWriter(io.Discard, "info"))
	require.NoError(t, err)

	perChannel := map[string]int{}
	for i := 0; i < 60; i++ {
		perChannel[strings.Repeat("c", 10)+string(rune('A'+i%26))+string(rune('a'+i/26))] = 1
	}
	require.NoError(t, n.SendReminder(context.Background(), models.Reminder{UnreadCount: 60, PerChannel: perChannel}))
	assert.Len(t, body, smsMaxBody)
}
