package service

import (
	"strings"
	"testing"

	"gyst/internal/notify"
	"gyst/internal/recurrence"
)

func TestDailyDigest(t *testing.T) {
	f := newFixture(t)
	reminders := NewReminderService(f.repos, f.instances, f.dispatcher, f.clock())

	f.createTask(t, TaskInput{Title: "Read <b>news</b>", PreferredTime: "08:00", EstimatedMinutes: intPtr(15)})
	walk := f.createTask(t, TaskInput{Title: "Walk"})
	f.completeToday(t, walk.ID, CompletionInput{})

	f.advance(1)
	text, err := reminders.DailyDigest(f.ctx, *f.user, recurrence.DateOf(monday))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Read &lt;b&gt;news&lt;/b&gt;", "<b>08:00</b>", "~15 min", "✅ <b>Done</b>", "Walk"} {
		if !strings.Contains(text, want) {
			t.Errorf("digest missing %q:\n%s", want, text)
		}
	}

	today, err := reminders.DailyDigest(f.ctx, *f.user, f.clock().Today())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(today, "1 overdue") {
		t.Errorf("digest does not report the missed read:\n%s", today)
	}
}

func TestSendDailyDigests(t *testing.T) {
	f := newFixture(t)
	reminders := NewReminderService(f.repos, f.instances, f.dispatcher, f.clock())
	f.createTask(t, TaskInput{Title: "Walk"})
	if _, err := f.repos.Users.UpsertByEmail(f.ctx, "bob@example.com", "Bob", 0); err != nil {
		t.Fatal(err)
	}

	if err := reminders.SendDailyDigests(f.ctx); err != nil {
		t.Fatal(err)
	}
	f.dispatcher.Wait()

	msgs := f.notifier.byTemplate(notify.TemplateDailyDigest)
	if len(msgs) != 2 {
		t.Fatalf("got %d digests, want 2", len(msgs))
	}
	for _, m := range msgs {
		text, _ := m.Data["text"].(string)
		if m.UserID == f.user.ID && !strings.Contains(text, "Walk") {
			t.Errorf("Ada's digest missing task:\n%s", text)
		}
		if m.UserID != f.user.ID && !strings.Contains(text, "nothing left for today") {
			t.Errorf("Bob's digest should be empty:\n%s", text)
		}
	}
}
