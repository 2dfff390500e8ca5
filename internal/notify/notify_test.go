package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/nadmax/bordo/internal/queue"
	"github.com/nadmax/bordo/internal/repository/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ana = &models.User{ID: "user-1", Name: "Ana", Email: "ana@example.com"}
	bia = &models.User{ID: "user-2", Name: "Bia", Email: "bia@example.com"}
)

func TestSendGridMailer_Send(t *testing.T) {
	var payload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	mailer := NewSendGridMailer(SendGridConfig{
		APIKey:      "sg-key",
		FromName:    "Comando de Bordo",
		FromAddress: "bordo@example.com",
		Host:        server.URL,
	})

	err := mailer.Send(context.Background(), FriendAddedMessage(ana, bia))
	require.NoError(t, err)

	assert.Equal(t, "Ana agora acompanha seu progresso", payload["subject"])
	from := payload["from"].(map[string]any)
	assert.Equal(t, "bordo@example.com", from["email"])
}

func TestSendGridMailer_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	mailer := NewSendGridMailer(SendGridConfig{APIKey: "bad", FromAddress: "bordo@example.com", Host: server.URL})

	err := mailer.Send(context.Background(), FriendAddedMessage(ana, bia))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestFriendAddedMessage(t *testing.T) {
	msg := FriendAddedMessage(ana, bia)

	assert.Equal(t, "bia@example.com", msg.To)
	assert.Equal(t, "Bia", msg.ToName)
	assert.Contains(t, msg.Body, "Ana (ana@example.com)")
}

func TestEmailJobRoundTrip(t *testing.T) {
	job := NewEmailJob(FriendAddedMessage(ana, bia))
	assert.Equal(t, queue.JobSendEmail, job.Type)

	msg, err := MessageFromJob(job)
	require.NoError(t, err)
	assert.Equal(t, FriendAddedMessage(ana, bia), msg)
}

func TestMessageFromJob_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		wantErr string
	}{
		{"missing to", map[string]any{"subject": "s", "body": "b"}, "missing 'to' field"},
		{"missing subject", map[string]any{"to": "a@b.c", "body": "b"}, "missing 'subject' field"},
		{"missing body", map[string]any{"to": "a@b.c", "subject": "s"}, "missing 'body' field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MessageFromJob(queue.NewJob(queue.JobSendEmail, tt.payload))
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestQueueNotifier(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	q, err := queue.NewQueue(mr.Addr())
	require.NoError(t, err)
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	require.NoError(t, NewQueueNotifier(q).FriendAdded(ctx, ana, bia))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, queue.JobSendEmail, job.Type)

	msg, err := MessageFromJob(job)
	require.NoError(t, err)
	assert.Equal(t, "bia@example.com", msg.To)
}

func TestNopNotifier(t *testing.T) {
	assert.NoError(t, NopNotifier{}.FriendAdded(context.Background(), ana, bia))
}
