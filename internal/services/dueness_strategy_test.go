package services

import (
	"testing"

	"cloud.google.com/go/civil"

	"fintrack/internal/core"
)

func TestPeriodicChecker_IsDue(t *testing.T) {
	checker := PeriodicChecker{}
	monthly := core.RecurringItem{Type: core.Fixed, Amount: dec("1"), Recurrence: core.Monthly, StartDate: "2024-01-31"}
	quarterly := core.RecurringItem{Type: core.Fixed, Amount: dec("1"), Recurrence: core.Quarterly, StartDate: "2024-01-15", EndDate: "2024-12-31"}

	tests := []struct {
		name  string
		item  core.RecurringItem
		today civil.Date
		want  bool
	}{
		{"before due day", monthly, day(2024, 3, 30), false},
		{"on due day", monthly, day(2024, 3, 31), true},
		{"clamped in february", monthly, day(2024, 2, 29), true},
		{"day before clamped due day", monthly, day(2024, 2, 28), false},
		{"before start", monthly, day(2023, 12, 31), false},
		{"quarter month after day", quarterly, day(2024, 4, 20), true},
		{"off-quarter month", quarterly, day(2024, 5, 20), false},
		{"after end", quarterly, day(2025, 1, 20), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checker.IsDue(tt.item, tt.today); got != tt.want {
				t.Errorf("PeriodicChecker.IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOneTimeChecker_IsDue(t *testing.T) {
	checker := OneTimeChecker{}
	item := core.RecurringItem{Type: core.Fixed, Amount: dec("1"), Recurrence: core.OneTime, StartDate: "2024-06-10"}

	tests := []struct {
		name  string
		today civil.Date
		want  bool
	}{
		{"before", day(2024, 6, 9), false},
		{"on the day", day(2024, 6, 10), true},
		{"later that month", day(2024, 6, 30), true},
		{"next month", day(2024, 7, 10), false},
		{"a year later", day(2025, 6, 10), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checker.IsDue(item, tt.today); got != tt.want {
				t.Errorf("OneTimeChecker.IsDue() = %v, want %v", got, tt.want)
			}
		})
	}

	bad := item
	bad.StartDate = "garbage"
	if checker.IsDue(bad, day(2024, 6, 10)) {
		t.Error("unparseable start date must never be due")
	}
}

func TestGetDuenessChecker(t *testing.T) {
	tests := []struct {
		recurrence core.Recurrence
		wantErr    bool
		wantType   string
	}{
		{core.Monthly, false, "PeriodicChecker"},
		{core.Quarterly, false, "PeriodicChecker"},
		{core.HalfYearly, false, "PeriodicChecker"},
		{core.Yearly, false, "PeriodicChecker"},
		{core.OneTime, false, "OneTimeChecker"},
		{core.Recurrence("weekly"), true, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.recurrence), func(t *testing.T) {
			checker, err := GetDuenessChecker(tt.recurrence)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetDuenessChecker() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			switch checker.(type) {
			case PeriodicChecker:
				if tt.wantType != "PeriodicChecker" {
					t.Errorf("got PeriodicChecker, want %s", tt.wantType)
				}
			case OneTimeChecker:
				if tt.wantType != "OneTimeChecker" {
					t.Errorf("got OneTimeChecker, want %s", tt.wantType)
				}
			default:
				t.Errorf("unexpected checker type %T", checker)
			}
		})
	}
}

type alwaysDue struct{}

func (alwaysDue) IsDue(core.RecurringItem, civil.Date) bool { return true }

func TestRegisterDuenessChecker(t *testing.T) {
	custom := core.Recurrence("fortnightly")
	t.Cleanup(func() { delete(duenessStrategies, custom) })

	if _, err := GetDuenessChecker(custom); err == nil {
		t.Fatal("expected error for unregistered recurrence")
	}

	RegisterDuenessChecker(custom, alwaysDue{})

	checker, err := GetDuenessChecker(custom)
	if err != nil {
		t.Fatalf("GetDuenessChecker() after register: %v", err)
	}
	if !checker.IsDue(core.RecurringItem{}, civil.Date{}) {
		t.Error("custom checker should report due")
	}
}
