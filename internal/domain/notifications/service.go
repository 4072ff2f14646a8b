package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// Enqueuer runs work in the background. *jobs.Service satisfies it.
type Enqueuer interface {
	Enqueue(jobType string, run func(context.Context) (any, error)) bool
}

var ErrQueueFull = errors.New("notification queue is full")

type Service struct {
	Mailer      Mailer
	DefaultFrom string
	jobs        Enqueuer
	jobType     string
}

func New(mailer Mailer, from string, jobs Enqueuer, jobType string) *Service {
	if from == "" {
		from = "no-reply@example.com"
	}
	return &Service{Mailer: mailer, DefaultFrom: from, jobs: jobs, jobType: jobType}
}

// SendWelcome delivers the sign-in details of a newly provisioned account.
// With a queue configured the mail goes out in the background and only a
// full queue is reported.
func (s *Service) SendWelcome(ctx context.Context, email, name, password string) error {
	if s.Mailer == nil || strings.TrimSpace(email) == "" {
		return nil
	}
	body := welcomeBody(name, email, password)
	send := func(ctx context.Context) (any, error) {
		err := s.Mailer.Send(ctx, s.DefaultFrom, email, welcomeSubject, body)
		return map[string]any{"type": TypeWelcome, "to": email}, err
	}
	if s.jobs == nil {
		_, err := send(ctx)
		return err
	}
	if !s.jobs.Enqueue(s.jobType, func(ctx context.Context) (any, error) { return send(ctx) }) {
		return ErrQueueFull
	}
	return nil
}

func welcomeBody(name, email, password string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", name)
	b.WriteString("An account has been created for you.\n\n")
	fmt.Fprintf(&b, "Email: %s\n", email)
	fmt.Fprintf(&b, "Password: %s\n\n", password)
	b.WriteString("Please change your password after signing in.\n")
	return b.String()
}
