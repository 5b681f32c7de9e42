package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode"

	"lifemap/internal/model"
	"lifemap/internal/service"
)

var errAmbiguousID = errors.New("ambiguous id")

// parseAddArgs reads "title;kind;priority;areas;due;recurrence". Only title and areas are required.
// Areas are matched by id or by display name, due is YYYY-MM-DD in loc and recurrence is
// daily, monthly or weekly:1,3 (0 = Sunday).
func parseAddArgs(raw string, areas []model.Area, loc *time.Location) (service.TaskDraft, error) {
	parts := strings.Split(raw, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	field := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}

	draft := service.TaskDraft{
		Title:    field(0),
		Kind:     model.KindOneTime,
		Priority: model.PriorityMedium,
	}
	if draft.Title == "" {
		return draft, errors.New("title is required")
	}

	if v := strings.ToLower(field(1)); v != "" {
		draft.Kind = model.TaskKind(v)
		if !draft.Kind.Valid() {
			return draft, fmt.Errorf("unknown type %q", v)
		}
	}
	if v := strings.ToLower(field(2)); v != "" {
		draft.Priority = model.Priority(v)
		if !draft.Priority.Valid() {
			return draft, fmt.Errorf("unknown priority %q", v)
		}
	}

	for _, name := range strings.Split(field(3), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := lookupArea(areas, name)
		if !ok {
			return draft, fmt.Errorf("unknown area %q", name)
		}
		if !containsArea(draft.Areas, id) {
			draft.Areas = append(draft.Areas, id)
		}
	}
	if len(draft.Areas) == 0 {
		return draft, errors.New("at least one area is required")
	}

	if v := field(4); v != "" {
		if loc == nil {
			loc = time.Local
		}
		due, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			return draft, fmt.Errorf("due date %q must look like 2025-03-05", v)
		}
		draft.DueDate = &due
	}

	if v := field(5); v != "" {
		rec, err := parseRecurrence(v)
		if err != nil {
			return draft, err
		}
		draft.Recurrence = &rec
		draft.Kind = model.KindRepetitive
	}
	return draft, nil
}

func parseRecurrence(raw string) (model.Recurrence, error) {
	interval, days, _ := strings.Cut(strings.ToLower(raw), ":")
	rec := model.Recurrence{Interval: model.Interval(strings.TrimSpace(interval))}
	if days != "" {
		for _, d := range strings.Split(days, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(d))
			if err != nil {
				return rec, fmt.Errorf("weekday %q is not a number", d)
			}
			rec.DaysOfWeek = append(rec.DaysOfWeek, n)
		}
	}
	if err := rec.Validate(); err != nil {
		return rec, err
	}
	return rec, nil
}

func lookupArea(areas []model.Area, name string) (model.AreaID, bool) {
	for _, a := range areas {
		if strings.EqualFold(string(a.ID), name) || strings.EqualFold(a.Name, name) {
			return a.ID, true
		}
	}
	return "", false
}

func containsArea(list []model.AreaID, id model.AreaID) bool {
	for _, a := range list {
		if a == id {
			return true
		}
	}
	return false
}

// resolveID accepts a full id or a unique prefix of one.
func resolveID(ids []string, ref string) (string, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "#")
	if ref == "" {
		return "", service.ErrNotFound
	}
	match := ""
	for _, id := range ids {
		if id == ref {
			return id, nil
		}
		if strings.HasPrefix(id, ref) {
			if match != "" {
				return "", errAmbiguousID
			}
			match = id
		}
	}
	if match == "" {
		return "", service.ErrNotFound
	}
	return match, nil
}

func taskIDs(tasks []model.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

// shortID is the prefix shown in chat; resolveID accepts it back.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// describeError turns service errors into a chat reply.
func describeError(err error) string {
	switch {
	case errors.Is(err, service.ErrNotInitialized):
		return "Sign in first: /login &lt;name&gt;"
	case errors.Is(err, service.ErrUnknownUser):
		return "That name is not on the list of users."
	case errors.Is(err, errAmbiguousID):
		return "Several items match that id. Type a few more characters."
	case errors.Is(err, service.ErrNotFound):
		return "Nothing found with that id."
	case errors.Is(err, service.ErrValidation):
		return "Invalid input: " + escape(err.Error())
	default:
		return "Something went wrong: " + escape(err.Error())
	}
}

func shortTitle(title string, maxLen int) string {
	clean := normalizeTitle(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func escape(s string) string {
	return html.EscapeString(s)
}
