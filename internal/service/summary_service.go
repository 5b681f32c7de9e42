package service

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"lifemap/internal/model"
)

// SummaryService renders the daily report sent by the chat adapter.
type SummaryService struct {
	planner *PlannerService
}

func NewSummaryService(planner *PlannerService) *SummaryService {
	return &SummaryService{planner: planner}
}

// DailySummary lists today's plan, open tasks ordered by due date and the repetitive tasks due today.
func (s *SummaryService) DailySummary(now time.Time) (string, error) {
	if _, err := s.planner.User(); err != nil {
		return "", err
	}
	tasks := s.planner.Tasks()
	focus := s.planner.FocusTasks()
	areaNames := make(map[model.AreaID]string)
	for _, a := range s.planner.Areas() {
		areaNames[a.ID] = a.Name
	}

	var pending []model.Task
	var dueToday []model.Task
	for _, task := range tasks {
		if task.Kind == model.KindRepetitive {
			if recurringDue(task, now) {
				dueToday = append(dueToday, task)
			}
			continue
		}
		if task.CompletedAt == nil {
			pending = append(pending, task)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		switch {
		case pending[i].DueDate == nil && pending[j].DueDate == nil:
			return pending[i].CreatedAt.After(pending[j].CreatedAt)
		case pending[i].DueDate == nil:
			return false
		case pending[j].DueDate == nil:
			return true
		default:
			return pending[i].DueDate.Before(*pending[j].DueDate)
		}
	})

	var builder strings.Builder
	builder.WriteString("📋 <b>Daily report</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("02.01.2006")))

	builder.WriteString("🎯 <b>Today's focus</b>\n")
	if len(focus) == 0 {
		builder.WriteString("— nothing planned\n")
	} else {
		for _, task := range focus {
			mark := "⬜"
			if task.CompletedAt != nil {
				mark = "✅"
			}
			builder.WriteString(fmt.Sprintf("%s %s\n", mark, html.EscapeString(task.Title)))
		}
	}

	builder.WriteString("\n🔥 <b>Open tasks</b>\n")
	if len(pending) == 0 {
		builder.WriteString("— no open tasks\n")
	} else {
		for _, task := range pending {
			builder.WriteString(formatTask(task, areaNames, now))
		}
	}

	builder.WriteString("\n♻️ <b>Repetitive tasks due today</b>\n")
	if len(dueToday) == 0 {
		builder.WriteString("— nothing due\n")
	} else {
		for _, task := range dueToday {
			builder.WriteString(formatRecurring(task, now))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

// recurringDue reports whether the next cycle of a repetitive task falls on today.
func recurringDue(task model.Task, now time.Time) bool {
	if task.Recurrence == nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if task.LastCompletedAt != nil && !task.LastCompletedAt.In(now.Location()).Before(today) {
		return false
	}
	from := today.AddDate(0, 0, -1)
	if task.LastCompletedAt != nil {
		from = task.LastCompletedAt.In(now.Location())
	}
	return !task.Recurrence.NextOccurrence(from).After(today)
}

func formatTask(task model.Task, areaNames map[model.AreaID]string, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		switch {
		case now.After(d):
			icon = "⚠️"
		case d.Sub(now) <= 48*time.Hour:
			icon = "⏳"
		}
	}

	sb.WriteString(fmt.Sprintf("%s %s", icon, html.EscapeString(strings.TrimSpace(task.Title))))
	if names := areaLabel(task.Areas, areaNames); names != "" {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(names)))
	}

	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		if now.After(d) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s — <b>overdue</b>", d.Format(time.DateOnly)))
		} else {
			daysLeft := int(d.Sub(now).Hours()/24) + 1
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s · ≈%d days left", d.Format(time.DateOnly), daysLeft))
		}
	}

	sb.WriteByte('\n')
	return sb.String()
}

func formatRecurring(task model.Task, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("♻️ %s", html.EscapeString(strings.TrimSpace(task.Title))))
	if task.LastCompletedAt != nil {
		sb.WriteString(fmt.Sprintf("\n   ✅ last done: %s", task.LastCompletedAt.In(now.Location()).Format(time.DateOnly)))
	} else {
		sb.WriteString("\n   ✅ not done yet")
	}
	sb.WriteByte('\n')
	return sb.String()
}

func areaLabel(areas []model.AreaID, names map[model.AreaID]string) string {
	parts := make([]string, 0, len(areas))
	for _, a := range areas {
		if n, ok := names[a]; ok && strings.TrimSpace(n) != "" {
			parts = append(parts, n)
		} else {
			parts = append(parts, string(a))
		}
	}
	return strings.Join(parts, " + ")
}
