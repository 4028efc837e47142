package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"wbautoslot/internal/domain"
	"wbautoslot/pkg/logx"
)

type Config struct {
	Enabled bool `json:"enabled"`

	// RatePerSec caps outbound sends across all channels. Burst equals the
	// rate so short spikes drain without blocking.
	RatePerSec int `json:"rate_per_sec"`

	Telegram TelegramConfig `json:"telegram"`
	Email    EmailConfig    `json:"email"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

type EmailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	From     string `json:"from"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// textSender is one delivery channel. Implementations must be safe for
// concurrent use.
type textSender interface {
	SendText(ctx context.Context, to domain.User, subject, body string) error
}

// Service fans one notification out to every configured channel. It
// implements the notification gateway consumed by the search orchestrator:
// all sends are best-effort and log-only on failure.
type Service struct {
	log      logx.Logger
	enabled  bool
	limiter  *rate.Limiter
	channels []namedSender

	// now is swapped in tests.
	now func() time.Time
}

type namedSender struct {
	name string
	s    textSender
}

func New(cfg Config, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	s := &Service{
		log:     log,
		enabled: cfg.Enabled,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		now:     time.Now,
	}
	if !cfg.Enabled {
		return s, nil
	}
	if cfg.Telegram.Token != "" {
		tg, err := newTelegramSender(cfg.Telegram)
		if err != nil {
			return nil, err
		}
		s.channels = append(s.channels, namedSender{name: "telegram", s: tg})
	}
	if cfg.Email.Host != "" {
		s.channels = append(s.channels, namedSender{name: "email", s: newEmailSender(cfg.Email)})
	}
	log.Info("notifications configured",
		logx.Bool("enabled", cfg.Enabled),
		logx.Int("channels", len(s.channels)))
	return s, nil
}

func (s *Service) NotifySlotsFound(ctx context.Context, user domain.User, task domain.Task, slots []domain.Slot) {
	subject, body := slotsFoundMessage(task, slots)
	s.send(ctx, user, subject, body)
}

func (s *Service) NotifyCompleted(ctx context.Context, user domain.User, task domain.Task) {
	subject, body := completedMessage(task, s.now())
	s.send(ctx, user, subject, body)
}

func (s *Service) NotifyError(ctx context.Context, user domain.User, task domain.Task, errMsg string) {
	subject, body := errorMessage(task, errMsg, s.now())
	s.send(ctx, user, subject, body)
}

func (s *Service) send(ctx context.Context, user domain.User, subject, body string) {
	if !s.enabled || len(s.channels) == 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for _, ch := range s.channels {
		wctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		if err := s.limiter.Wait(wctx); err != nil {
			cancel()
			s.log.Warn("notification dropped by rate limit",
				logx.String("channel", ch.name), logx.String("subject", subject))
			continue
		}
		err := ch.s.SendText(wctx, user, subject, body)
		cancel()
		if err != nil {
			s.log.Error("notification send failed",
				logx.String("channel", ch.name),
				logx.String("subject", subject),
				logx.Err(err))
			continue
		}
		s.log.Debug("notification sent",
			logx.String("channel", ch.name), logx.String("subject", subject))
	}
}
