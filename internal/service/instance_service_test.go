package service

import (
	"errors"
	"testing"
	"time"

	"gyst/internal/model"
	"gyst/internal/notify"
	"gyst/internal/recurrence"
	"gyst/internal/repository"
)

func TestMaterializeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{})

	if got := len(f.listInstances(t, task.ID)); got != 14 {
		t.Fatalf("create materialized %d instances, want 14", got)
	}

	n, err := f.instances.Materialize(f.ctx, f.user.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("second materialize created %d, want 0", n)
	}

	n, err = f.instances.Materialize(f.ctx, f.user.ID, 28)
	if err != nil {
		t.Fatal(err)
	}
	if n != 14 {
		t.Fatalf("wider window created %d, want 14", n)
	}

	seen := recurrence.NewDateSet()
	for _, inst := range f.listInstances(t, task.ID) {
		if seen.Has(inst.DueDate) {
			t.Fatalf("duplicate instance on %s", inst.DueDate.Format(recurrence.DateLayout))
		}
		seen.Add(inst.DueDate)
		if inst.Status != model.StatusPending {
			t.Fatalf("new instance status %q", inst.Status)
		}
	}
}

func TestMaterializeWeekdaysOnly(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{Pattern: &recurrence.Pattern{WeekdaysOnly: true}})

	list := f.listInstances(t, task.ID)
	if len(list) != 10 {
		t.Fatalf("got %d instances, want 10", len(list))
	}
	for _, inst := range list {
		if wd := inst.DueDate.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("weekend instance on %s", inst.DueDate.Format(recurrence.DateLayout))
		}
	}
}

func TestMaterializeCarriesPreferredTime(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{PreferredTime: "7:30"})
	if task.PreferredTime != "07:30" {
		t.Fatalf("PreferredTime = %q", task.PreferredTime)
	}
	if got := f.instanceOn(t, task.ID, monday).ScheduledTime; got != "07:30" {
		t.Fatalf("ScheduledTime = %q, want 07:30", got)
	}
}

func TestMaterializeSkipsPausedTasks(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{})
	if _, err := f.tasks.PauseTask(f.ctx, f.user.ID, task.ID); err != nil {
		t.Fatal(err)
	}

	n, err := f.instances.Materialize(f.ctx, f.user.ID, 28)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("paused task materialized %d instances", n)
	}
	if got := len(f.listInstances(t, task.ID)); got != 14 {
		t.Fatalf("pausing dropped instances: %d left", got)
	}

	f.advance(14)
	if _, err := f.tasks.ResumeTask(f.ctx, f.user.ID, task.ID); err != nil {
		t.Fatal(err)
	}
	if got := len(f.listInstances(t, task.ID)); got != 28 {
		t.Fatalf("resume left %d instances, want 28", got)
	}
}

func TestCompleteUpdatesAggregatesAndStreak(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{})

	res := f.completeToday(t, task.ID, CompletionInput{Mood: model.MoodHappy, ActualMinutes: intPtr(10), Notes: " done "})
	if res.Instance.Status != model.StatusCompleted || res.Instance.CompletedAt == nil {
		t.Fatalf("instance after completion: %+v", res.Instance)
	}
	if res.Instance.Notes != "done" {
		t.Fatalf("Notes = %q", res.Instance.Notes)
	}
	if res.Streak.CurrentStreak != 1 || res.Streak.TotalCompletions != 1 {
		t.Fatalf("streak after first completion: %+v", res.Streak)
	}

	f.advance(1)
	res = f.completeToday(t, task.ID, CompletionInput{ActualMinutes: intPtr(20)})
	if res.Streak.CurrentStreak != 2 || res.Streak.LongestStreak != 2 {
		t.Fatalf("streak after second completion: %+v", res.Streak)
	}
	if res.Streak.CompletionRate != 100 {
		t.Fatalf("CompletionRate = %d, want 100", res.Streak.CompletionRate)
	}
	if res.Streak.NextMilestone != 7 {
		t.Fatalf("NextMilestone = %d, want 7", res.Streak.NextMilestone)
	}

	stored, err := f.tasks.GetTask(f.ctx, f.user.ID, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.CompletionCount != 2 {
		t.Fatalf("CompletionCount = %d, want 2", stored.CompletionCount)
	}
	if stored.ActualMinutesAvg == nil || *stored.ActualMinutesAvg != 15 {
		t.Fatalf("ActualMinutesAvg = %v, want 15", stored.ActualMinutesAvg)
	}
	if stored.LastCompletedAt == nil || !stored.LastCompletedAt.Equal(f.now) {
		t.Fatalf("LastCompletedAt = %v, want %v", stored.LastCompletedAt, f.now)
	}

	history, err := f.repos.Completions.ListByTask(f.ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d rows, want 2", len(history))
	}
}

func TestCompleteMilestoneEarnsBreak(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{Title: "Walk"})

	var res *CompletionResult
	for day := 1; day <= 7; day++ {
		res = f.completeToday(t, task.ID, CompletionInput{})
		if day < 7 && (res.Milestone != 0 || res.BreaksEarned != 0) {
			t.Fatalf("day %d reported milestone %d", day, res.Milestone)
		}
		if day < 7 {
			f.advance(1)
		}
	}
	if res.Milestone != 7 || res.BreaksEarned != 1 {
		t.Fatalf("day 7: milestone %d, breaks %d; want 7, 1", res.Milestone, res.BreaksEarned)
	}
	if res.Streak.EarnedBreaks != 1 || res.Streak.AvailableBreaks != 1 || res.Streak.UsedBreaks != 0 {
		t.Fatalf("ledger = %+v", res.Streak)
	}
	if res.Streak.NextMilestone != 14 {
		t.Fatalf("NextMilestone = %d, want 14", res.Streak.NextMilestone)
	}

	f.dispatcher.Wait()
	msgs := f.notifier.byTemplate(notify.TemplateMilestone)
	if len(msgs) != 1 {
		t.Fatalf("got %d milestone notifications, want 1", len(msgs))
	}
	if msgs[0].ChatID != 42 || msgs[0].Data["milestone"] != 7 || msgs[0].Data["task"] != "Walk" {
		t.Fatalf("milestone message = %+v", msgs[0])
	}
}

func TestCompleteRejectsNonPending(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{})
	inst := f.instanceOn(t, task.ID, monday)

	if _, err := f.instances.Complete(f.ctx, f.user.ID, inst.ID, CompletionInput{}); err != nil {
		t.Fatal(err)
	}
	_, err := f.instances.Complete(f.ctx, f.user.ID, inst.ID, CompletionInput{})
	wantErr(t, err, ErrInvalidTransition)
}

func TestCompleteValidation(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{Subtasks: []string{"warm up"}})
	inst := f.instanceOn(t, task.ID, monday)

	tests := []struct {
		name string
		in   CompletionInput
	}{
		{"unknown mood", CompletionInput{Mood: "ecstatic"}},
		{"zero minutes", CompletionInput{ActualMinutes: intPtr(0)}},
		{"unknown subtask", CompletionInput{Subtasks: map[string]bool{"nope": true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.instances.Complete(f.ctx, f.user.ID, inst.ID, tt.in)
			wantErr(t, err, ErrValidation)
		})
	}

	_, err := f.instances.Complete(f.ctx, f.user.ID+1, inst.ID, CompletionInput{})
	wantErr(t, err, ErrNotFound)
}

func TestCompletePhotoFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{})
	inst := f.instanceOn(t, task.ID, monday)
	f.store.err = errors.New("bucket unavailable")

	_, err := f.instances.Complete(f.ctx, f.user.ID, inst.ID, CompletionInput{
		Photo:            []byte("jpeg"),
		PhotoContentType: "image/jpeg",
	})
	if err == nil {
		t.Fatal("expected upload error")
	}

	after := f.instanceOn(t, task.ID, monday)
	if after.Status != model.StatusPending || after.CompletedAt != nil {
		t.Fatalf("instance mutated: %+v", after)
	}
	history, _ := f.repos.Completions.ListByTask(f.ctx, task.ID)
	if len(history) != 0 {
		t.Fatalf("completion written despite failed upload")
	}
	stored, _ := f.tasks.GetTask(f.ctx, f.user.ID, task.ID)
	if stored.CompletionCount != 0 {
		t.Fatalf("CompletionCount = %d", stored.CompletionCount)
	}
}

func TestCompleteStoresPhotoAndSubtasks(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{Subtasks: []string{"warm up", "run"}})
	subtasks := task.Subtasks.Data()

	res := f.completeToday(t, task.ID, CompletionInput{
		Photo:            []byte("png"),
		PhotoContentType: "image/png",
		Subtasks:         map[string]bool{subtasks[0].ID: true},
	})
	if len(f.store.puts) != 1 || res.Instance.PhotoURL != "/media/"+f.store.puts[0] {
		t.Fatalf("PhotoURL = %q, puts = %v", res.Instance.PhotoURL, f.store.puts)
	}
	if !res.Instance.SubtasksCompleted.Data()[subtasks[0].ID] {
		t.Fatalf("subtask not recorded: %v", res.Instance.SubtasksCompleted.Data())
	}
}

func TestSkipSpendsBreakOnce(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{})

	first := f.instanceOn(t, task.ID, monday)
	_, err := f.instances.Skip(f.ctx, f.user.ID, first.ID, "busy", true)
	wantErr(t, err, ErrNoBreaksAvailable)

	skipped, err := f.instances.Skip(f.ctx, f.user.ID, first.ID, "busy", false)
	if err != nil {
		t.Fatal(err)
	}
	if skipped.Status != model.StatusSkipped || skipped.SkipReason != "busy" || skipped.BreakUsed {
		t.Fatalf("after plain skip: %+v", skipped)
	}

	f.advance(1)
	for day := 2; day <= 8; day++ {
		f.completeToday(t, task.ID, CompletionInput{})
		f.advance(1)
	}

	ninth := f.instanceOn(t, task.ID, f.now)
	inst, err := f.instances.Skip(f.ctx, f.user.ID, ninth.ID, "travel", true)
	if err != nil {
		t.Fatal(err)
	}
	if !inst.BreakUsed {
		t.Fatal("BreakUsed not set")
	}
	// Re-skipping only edits the reason.
	inst, err = f.instances.Skip(f.ctx, f.user.ID, ninth.ID, "flight delayed", true)
	if err != nil {
		t.Fatal(err)
	}
	if inst.SkipReason != "flight delayed" {
		t.Fatalf("SkipReason = %q", inst.SkipReason)
	}

	row, err := f.tasks.Streak(f.ctx, f.user.ID, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if row.EarnedBreaks != 1 || row.AvailableBreaks != 0 || row.UsedBreaks != 1 {
		t.Fatalf("ledger after spend = %+v", row)
	}

	completed := f.instanceOn(t, task.ID, monday.AddDate(0, 0, 1))
	_, err = f.instances.Skip(f.ctx, f.user.ID, completed.ID, "", false)
	wantErr(t, err, ErrInvalidTransition)
}

func TestRescheduleSpawnsOnePendingSibling(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{})
	day1 := f.instanceOn(t, task.ID, monday)
	target := monday.AddDate(0, 0, 19)

	moved, err := f.instances.Reschedule(f.ctx, f.user.ID, day1.ID, target, "dentist")
	if err != nil {
		t.Fatal(err)
	}
	if moved.Status != model.StatusRescheduled || moved.RescheduleReason != "dentist" {
		t.Fatalf("moved = %+v", moved)
	}
	if moved.OriginalDueDate == nil || !moved.OriginalDueDate.Equal(recurrence.DateOf(monday)) {
		t.Fatalf("OriginalDueDate = %v", moved.OriginalDueDate)
	}
	if !moved.DueDate.Equal(recurrence.DateOf(target)) {
		t.Fatalf("DueDate = %v", moved.DueDate)
	}

	// Wider materialization neither duplicates the target nor refills day 1.
	if _, err := f.instances.Materialize(f.ctx, f.user.ID, 28); err != nil {
		t.Fatal(err)
	}
	pendingOn := map[string]int{}
	for _, inst := range f.listInstances(t, task.ID) {
		if inst.Status == model.StatusPending {
			pendingOn[inst.DueDate.Format(recurrence.DateLayout)]++
		}
	}
	if pendingOn["2024-01-20"] != 1 {
		t.Fatalf("pending on target = %d, want 1", pendingOn["2024-01-20"])
	}
	if pendingOn["2024-01-01"] != 0 {
		t.Fatal("vacated day was refilled")
	}

	// Moving onto an existing pending instance keeps just that one.
	day2 := f.instanceOn(t, task.ID, monday.AddDate(0, 0, 1))
	if _, err := f.instances.Reschedule(f.ctx, f.user.ID, day2.ID, monday.AddDate(0, 0, 2), ""); err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, inst := range f.listInstances(t, task.ID) {
		if inst.Status == model.StatusPending && inst.DueDate.Equal(recurrence.DateOf(monday.AddDate(0, 0, 2))) {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("pending on collision date = %d, want 1", count)
	}

	_, err = f.instances.Reschedule(f.ctx, f.user.ID, day1.ID, monday.AddDate(0, 0, 3), "")
	wantErr(t, err, ErrInvalidTransition)
}

func TestRescheduleValidation(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{})
	inst := f.instanceOn(t, task.ID, monday)

	_, err := f.instances.Reschedule(f.ctx, f.user.ID, inst.ID, time.Time{}, "")
	wantErr(t, err, ErrValidation)
	_, err = f.instances.Reschedule(f.ctx, f.user.ID, inst.ID, monday, "")
	wantErr(t, err, ErrValidation)
}

func TestReactivatePreservesHistory(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{})
	res := f.completeToday(t, task.ID, CompletionInput{Mood: model.MoodSad, ActualMinutes: intPtr(5), Notes: "tired"})

	inst, err := f.instances.Reactivate(f.ctx, f.user.ID, res.Instance.ID)
	if err != nil {
		t.Fatal(err)
	}
	stored := f.instanceOn(t, task.ID, monday)
	for _, got := range []model.TaskInstance{*inst, stored} {
		if got.Status != model.StatusPending || got.CompletedAt != nil {
			t.Fatalf("status fields not reset: %+v", got)
		}
		if got.Mood != model.MoodSad || got.Notes != "tired" || got.ActualMinutes == nil || *got.ActualMinutes != 5 {
			t.Fatalf("completion fields lost: %+v", got)
		}
	}

	_, err = f.instances.Reactivate(f.ctx, f.user.ID, inst.ID)
	wantErr(t, err, ErrInvalidTransition)

	// Re-completion overwrites the retained fields.
	res = f.completeToday(t, task.ID, CompletionInput{Mood: model.MoodHappy})
	if res.Instance.Mood != model.MoodHappy || res.Instance.Notes != "" || res.Instance.ActualMinutes != nil {
		t.Fatalf("re-completion did not overwrite: %+v", res.Instance)
	}
}

func TestSetSubtaskIsIdempotent(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{Subtasks: []string{"one", "", "two"}})
	subtasks := task.Subtasks.Data()
	if len(subtasks) != 2 {
		t.Fatalf("got %d subtasks, want 2", len(subtasks))
	}
	inst := f.instanceOn(t, task.ID, monday)

	for i := 0; i < 2; i++ {
		got, err := f.instances.SetSubtask(f.ctx, f.user.ID, inst.ID, subtasks[1].ID, true)
		if err != nil {
			t.Fatal(err)
		}
		if m := got.SubtasksCompleted.Data(); len(m) != 1 || !m[subtasks[1].ID] {
			t.Fatalf("pass %d: subtasks = %v", i, m)
		}
	}

	_, err := f.instances.SetSubtask(f.ctx, f.user.ID, inst.ID, "missing", true)
	wantErr(t, err, ErrValidation)
}

func TestDeleteInstanceFromAnyState(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{})
	res := f.completeToday(t, task.ID, CompletionInput{})

	wantErr(t, f.instances.Delete(f.ctx, f.user.ID+1, res.Instance.ID), ErrNotFound)
	if err := f.instances.Delete(f.ctx, f.user.ID, res.Instance.ID); err != nil {
		t.Fatal(err)
	}
	wantErr(t, f.instances.Delete(f.ctx, f.user.ID, res.Instance.ID), ErrNotFound)

	// History survives the instance.
	history, _ := f.repos.Completions.ListByTask(f.ctx, task.ID)
	if len(history) != 1 {
		t.Fatalf("history has %d rows, want 1", len(history))
	}
}

func TestDeletedDateIsNotMaterializedAgain(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{})
	day3 := monday.AddDate(0, 0, 2)
	doomed := f.instanceOn(t, task.ID, day3)

	if err := f.instances.Delete(f.ctx, f.user.ID, doomed.ID); err != nil {
		t.Fatal(err)
	}

	cal := NewCalendarService(f.repos, f.instances, nil, f.clock())
	items, err := cal.View(f.ctx, f.user.ID, monday, day3)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("calendar has %d items, want 2", len(items))
	}
	n, err := f.instances.Materialize(f.ctx, f.user.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("Materialize created %d instances, want 0", n)
	}
	for _, inst := range f.listInstances(t, task.ID) {
		if inst.DueDate.Equal(recurrence.DateOf(day3)) {
			t.Fatalf("instance %d (%s) reappeared on the deleted date", inst.ID, inst.Status)
		}
	}

	// An explicit reschedule may still land there.
	moved := f.instanceOn(t, task.ID, monday)
	if _, err := f.instances.Reschedule(f.ctx, f.user.ID, moved.ID, day3, "swap"); err != nil {
		t.Fatal(err)
	}
	if got := f.instanceOn(t, task.ID, day3); got.Status != model.StatusPending {
		t.Fatalf("rescheduled sibling status = %s", got.Status)
	}
}

func TestBreakCreditBridgesMissedDay(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{})

	for day := 1; day <= 7; day++ {
		f.completeToday(t, task.ID, CompletionInput{})
		f.advance(1)
	}

	eighth := f.instanceOn(t, task.ID, f.now)
	if _, err := f.instances.Skip(f.ctx, f.user.ID, eighth.ID, "sick", true); err != nil {
		t.Fatal(err)
	}
	f.advance(1)

	res := f.completeToday(t, task.ID, CompletionInput{})
	if res.Streak.CurrentStreak != 8 || res.Streak.LongestStreak != 8 {
		t.Fatalf("streak after bridged day = %+v, want current=longest=8", res.Streak)
	}
	if res.Streak.TotalCompletions != 8 {
		t.Fatalf("TotalCompletions = %d, want 8", res.Streak.TotalCompletions)
	}
	if res.Streak.AvailableBreaks != 0 || res.Streak.UsedBreaks != 1 {
		t.Fatalf("ledger = %+v", res.Streak)
	}
}

func TestPlainSkipBreaksStreak(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{})

	for day := 1; day <= 3; day++ {
		f.completeToday(t, task.ID, CompletionInput{})
		f.advance(1)
	}
	missed := f.instanceOn(t, task.ID, f.now)
	if _, err := f.instances.Skip(f.ctx, f.user.ID, missed.ID, "", false); err != nil {
		t.Fatal(err)
	}
	f.advance(1)

	if res := f.completeToday(t, task.ID, CompletionInput{}); res.Streak.CurrentStreak != 1 {
		t.Fatalf("CurrentStreak = %d, want 1", res.Streak.CurrentStreak)
	}
}

func TestStaleInstanceCannotBeCompletedTwice(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, TaskInput{})
	inst := f.instanceOn(t, task.ID, monday)

	stale := inst
	if _, err := f.instances.Complete(f.ctx, f.user.ID, inst.ID, CompletionInput{}); err != nil {
		t.Fatal(err)
	}

	stale.Status = model.StatusCompleted
	err := f.repos.Transaction(f.ctx, func(tx *repository.Repositories) error {
		return transition(f.ctx, tx, &stale, model.StatusPending)
	})
	wantErr(t, err, ErrInvalidTransition)

	history, _ := f.repos.Completions.ListByTask(f.ctx, task.ID)
	if len(history) != 1 {
		t.Fatalf("history has %d rows, want 1", len(history))
	}
}
