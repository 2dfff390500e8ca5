// Package notify sends transactional email. Messages are queued as send_email jobs by
// the API and delivered through SendGrid by the worker.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/nadmax/bordo/internal/queue"
	"github.com/nadmax/bordo/internal/repository/models"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type SendGridConfig struct {
	APIKey      string
	FromName    string
	FromAddress string
	// Host overrides the API host, mainly for tests.
	Host string
}

type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewSendGridMailer(cfg SendGridConfig) *SendGridMailer {
	request := sendgrid.GetRequest(cfg.APIKey, "/v3/mail/send", cfg.Host)
	request.Method = rest.Post

	return &SendGridMailer{
		client: &sendgrid.Client{Request: request},
		from:   mail.NewEmail(cfg.FromName, cfg.FromAddress),
	}
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	to := mail.NewEmail(msg.ToName, msg.To)
	email := mail.NewSingleEmail(m.from, msg.Subject, to, msg.Body, msg.Body)

	response, err := m.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}

	log.Printf("Email sent to %s (status: %d)", msg.To, response.StatusCode)
	return nil
}

func FriendAddedMessage(follower, followed *models.User) Message {
	return Message{
		To:      followed.Email,
		ToName:  followed.Name,
		Subject: fmt.Sprintf("%s agora acompanha seu progresso", follower.Name),
		Body: fmt.Sprintf("Olá %s,\n\n%s (%s) adicionou você como amigo no Comando de Bordo e agora acompanha o seu progresso nas tarefas.\n",
			followed.Name, follower.Name, follower.Email),
	}
}

func NewEmailJob(msg Message) *queue.Job {
	return queue.NewJob(queue.JobSendEmail, map[string]any{
		"to":      msg.To,
		"to_name": msg.ToName,
		"subject": msg.Subject,
		"body":    msg.Body,
	})
}

func MessageFromJob(job *queue.Job) (Message, error) {
	to, ok := job.String("to")
	if !ok || to == "" {
		return Message{}, errors.New("missing 'to' field")
	}

	subject, ok := job.String("subject")
	if !ok {
		return Message{}, errors.New("missing 'subject' field")
	}

	body, ok := job.String("body")
	if !ok {
		return Message{}, errors.New("missing 'body' field")
	}

	toName, _ := job.String("to_name")
	return Message{To: to, ToName: toName, Subject: subject, Body: body}, nil
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// QueueNotifier hands notifications to the worker instead of calling SendGrid inline.
type QueueNotifier struct {
	queue Enqueuer
}

func NewQueueNotifier(q Enqueuer) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

func (n *QueueNotifier) FriendAdded(ctx context.Context, follower, followed *models.User) error {
	return n.queue.Enqueue(ctx, NewEmailJob(FriendAddedMessage(follower, followed)))
}

type NopNotifier struct{}

func (NopNotifier) FriendAdded(ctx context.Context, follower, followed *models.User) error {
	return nil
}
