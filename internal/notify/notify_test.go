package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"wbautoslot/internal/domain"
	"wbautoslot/pkg/logx"
)

type recordingSender struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
	err      error
}

func (r *recordingSender) SendText(_ context.Context, _ domain.User, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.subjects = append(r.subjects, subject)
	r.bodies = append(r.bodies, body)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subjects)
}

func testTask() domain.Task {
	return domain.Task{
		Name:       "koledino boxes",
		Warehouse:  "Koledino",
		Packaging:  "boxes",
		DateFrom:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		DateTo:     time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC),
		FoundSlots: 7,
	}
}

func testService(channels ...textSender) *Service {
	s, _ := New(Config{Enabled: true, RatePerSec: 1000}, logx.Nop())
	for i, ch := range channels {
		s.channels = append(s.channels, namedSender{name: "fake" + string(rune('0'+i)), s: ch})
	}
	s.now = func() time.Time { return time.Date(2025, 6, 3, 12, 30, 0, 0, time.UTC) }
	return s
}

func TestSlotsFoundMessageListsFirstFive(t *testing.T) {
	t.Parallel()
	slots := make([]domain.Slot, 8)
	for i := range slots {
		slots[i] = domain.Slot{
			Date:        time.Date(2025, 6, 2+i, 0, 0, 0, 0, time.UTC),
			Coefficient: 1.5,
		}
	}

	subject, body := slotsFoundMessage(testTask(), slots)

	if subject != "Slots found" {
		t.Fatalf("subject = %q", subject)
	}
	if !strings.Contains(body, "Slots found: 8") {
		t.Fatalf("body missing total count:\n%s", body)
	}
	if !strings.Contains(body, "5. 06.06.2025") {
		t.Fatalf("body missing fifth slot:\n%s", body)
	}
	if strings.Contains(body, "6. ") {
		t.Fatalf("body lists more than five slots:\n%s", body)
	}
	if !strings.Contains(body, "... and 3 more") {
		t.Fatalf("body missing overflow line:\n%s", body)
	}
}

func TestCompletedAndErrorMessages(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 3, 12, 30, 0, 0, time.UTC)

	subject, body := completedMessage(testTask(), now)
	if subject != "Task finished" || !strings.Contains(body, "Slots found: 7") {
		t.Fatalf("completed message wrong: %q\n%s", subject, body)
	}
	if !strings.Contains(body, "03.06.2025 12:30") {
		t.Fatalf("completed message missing timestamp:\n%s", body)
	}

	subject, body = errorMessage(testTask(), "portal unreachable", now)
	if subject != "Task failed" || !strings.Contains(body, "Error: portal unreachable") {
		t.Fatalf("error message wrong: %q\n%s", subject, body)
	}
}

func TestSendFansOutToAllChannels(t *testing.T) {
	t.Parallel()
	a := &recordingSender{}
	b := &recordingSender{}
	s := testService(a, b)

	s.NotifyCompleted(context.Background(), domain.User{Email: "u@example.com"}, testTask())

	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("fan-out: channel a=%d b=%d, want 1/1", a.count(), b.count())
	}
}

func TestSendFailureDoesNotStopOtherChannels(t *testing.T) {
	t.Parallel()
	bad := &recordingSender{err: errors.New("smtp down")}
	good := &recordingSender{}
	s := testService(bad, good)

	s.NotifyError(context.Background(), domain.User{}, testTask(), "boom")

	if good.count() != 1 {
		t.Fatalf("second channel skipped after first failed: %d sends", good.count())
	}
}

func TestDisabledServiceSendsNothing(t *testing.T) {
	t.Parallel()
	ch := &recordingSender{}
	s, err := New(Config{Enabled: false}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	s.channels = append(s.channels, namedSender{name: "fake", s: ch})

	s.NotifySlotsFound(context.Background(), domain.User{}, testTask(), []domain.Slot{{}})

	if ch.count() != 0 {
		t.Fatalf("disabled service sent %d notifications", ch.count())
	}
}

func TestEmailSenderBuildsMessage(t *testing.T) {
	t.Parallel()
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	e := newEmailSender(EmailConfig{Host: "mail.example.com", From: "bot@example.com"})
	e.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := e.SendText(context.Background(), domain.User{Email: "u@example.com"}, "Task finished", "all done")
	if err != nil {
		t.Fatal(err)
	}
	if gotAddr != "mail.example.com:587" {
		t.Fatalf("addr = %q, want default port 587", gotAddr)
	}
	if gotFrom != "bot@example.com" || len(gotTo) != 1 || gotTo[0] != "u@example.com" {
		t.Fatalf("envelope from=%q to=%v", gotFrom, gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: WB AutoSlot - Task finished\r\n") {
		t.Fatalf("missing subject header:\n%s", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nall done") {
		t.Fatalf("body not separated from headers:\n%s", msg)
	}
}

func TestEmailSenderRequiresRecipient(t *testing.T) {
	t.Parallel()
	e := newEmailSender(EmailConfig{Host: "mail.example.com"})
	e.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("sendMail called without a recipient")
		return nil
	}
	if err := e.SendText(context.Background(), domain.User{}, "s", "b"); err == nil {
		t.Fatal("expected error for user without email")
	}
}
