package source

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"boardfill/internal/domain"
)

// collectICS reads an iCalendar export. Only VEVENT components matter here;
// recurrence rules are not expanded, each VEVENT counts once on its DTSTART
// day. Events shorter than 15 minutes are floored to 0.25h.
func (s *Outlook) collectICS(day time.Time) ([]domain.Activity, error) {
	if s.cfg.ICSPath == "" {
		return nil, fmt.Errorf("outlook ics_path not configured")
	}
	events, err := parseICS(s.cfg.ICSPath)
	if err != nil {
		return nil, err
	}
	var activities []domain.Activity
	for _, e := range events {
		if !sameDay(e.Start, day) {
			continue
		}
		hours := roundHours(math.Max(0.25, e.DurationHours()))
		a := s.activityFromEvent(e, dateOnly(day), hours)
		if e.Start.Hour() == 0 && e.Start.Minute() == 0 && e.Start.Second() == 0 {
			// All-day events carry no meaningful start time.
			a.StartedAt = time.Time{}
		}
		activities = append(activities, a)
	}
	return activities, nil
}

type icsEvent struct {
	props map[string]string
}

// parseICS reads VEVENT blocks from an iCalendar file. Folded lines
// (continuations starting with space or tab) are unfolded first.
func parseICS(path string) ([]domain.CalendarEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ics %s: %w", path, err)
	}

	var events []domain.CalendarEvent
	var current *icsEvent
	for _, line := range lines {
		switch {
		case line == "BEGIN:VEVENT":
			current = &icsEvent{props: map[string]string{}}
		case line == "END:VEVENT":
			if current != nil {
				if e, ok := current.toEvent(); ok {
					events = append(events, e)
				}
			}
			current = nil
		case current != nil:
			name, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			// Strip property parameters: DTSTART;TZID=... -> DTSTART.
			if i := strings.IndexByte(name, ';'); i >= 0 {
				name = name[:i]
			}
			current.props[name] = value
		}
	}
	return events, nil
}

func (e *icsEvent) toEvent() (domain.CalendarEvent, bool) {
	summary := unescapeICS(e.props["SUMMARY"])
	startRaw := e.props["DTSTART"]
	if summary == "" || startRaw == "" {
		return domain.CalendarEvent{}, false
	}
	start, err := parseICSTime(startRaw)
	if err != nil {
		return domain.CalendarEvent{}, false
	}
	end := start
	if endRaw := e.props["DTEND"]; endRaw != "" {
		if parsed, err := parseICSTime(endRaw); err == nil {
			end = parsed
		}
	}
	return domain.CalendarEvent{
		Subject: summary,
		Start:   start,
		End:     end,
		Body:    strings.TrimSpace(unescapeICS(e.props["DESCRIPTION"])),
	}, true
}

func parseICSTime(s string) (time.Time, error) {
	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized ics timestamp %q", s)
}

var icsUnescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

func unescapeICS(s string) string {
	return icsUnescaper.Replace(s)
}
