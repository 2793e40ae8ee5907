package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"boardfill/internal/config"
	"boardfill/internal/domain"
)

// Outlook collects calendar activities from a CSV export, an ICS export or
// the Graph API, depending on the configured type.
type Outlook struct {
	cfg      config.OutlookConfig
	calendar CalendarBackend
}

func NewOutlook(cfg config.OutlookConfig, calendar CalendarBackend) *Outlook {
	return &Outlook{cfg: cfg, calendar: calendar}
}

func (s *Outlook) Kind() domain.SourceKind { return domain.SourceOutlook }
func (s *Outlook) Name() string            { return "Outlook" }
func (s *Outlook) Enabled() bool           { return s.cfg.Enabled }

func (s *Outlook) Collect(ctx context.Context, day time.Time) ([]domain.Activity, error) {
	switch s.cfg.Type {
	case "csv":
		return s.collectCSV(day)
	case "ics":
		return s.collectICS(day)
	case "graph_api":
		return s.collectGraph(ctx, day)
	}
	return nil, fmt.Errorf("unsupported outlook source type %q", s.cfg.Type)
}

func (s *Outlook) TestConnection(ctx context.Context) bool {
	switch s.cfg.Type {
	case "csv":
		if s.cfg.CSVPath == "" {
			return false
		}
		_, err := os.Stat(s.cfg.CSVPath)
		return err == nil
	case "ics":
		if s.cfg.ICSPath == "" {
			return false
		}
		_, err := os.Stat(s.cfg.ICSPath)
		return err == nil
	case "graph_api":
		return s.calendar != nil && s.calendar.TestConnection(ctx)
	}
	return false
}

func (s *Outlook) activityFromEvent(e domain.CalendarEvent, day time.Time, hours float64) domain.Activity {
	return domain.Activity{
		Title:       e.Subject,
		Source:      domain.SourceOutlook,
		Date:        day,
		Hours:       hours,
		Description: e.Body,
		AreaPath:    s.cfg.Mapping.AreaPath,
		Tags:        append([]string(nil), s.cfg.Mapping.Tags...),
		StartedAt:   e.Start,
	}
}

func (s *Outlook) collectCSV(day time.Time) ([]domain.Activity, error) {
	if s.cfg.CSVPath == "" {
		return nil, fmt.Errorf("outlook csv_path not configured")
	}
	events, err := parseOutlookCSV(s.cfg.CSVPath)
	if err != nil {
		return nil, err
	}
	var activities []domain.Activity
	for _, e := range events {
		if !sameDay(e.Start, day) {
			continue
		}
		activities = append(activities, s.activityFromEvent(e, dateOnly(day), e.DurationHours()))
	}
	return activities, nil
}

func (s *Outlook) collectGraph(ctx context.Context, day time.Time) ([]domain.Activity, error) {
	if s.calendar == nil {
		return nil, fmt.Errorf("graph client not configured")
	}
	if s.cfg.UserEmail == "" {
		return nil, fmt.Errorf("outlook user_email required for graph_api")
	}
	events, err := s.calendar.CalendarEvents(ctx, s.cfg.UserEmail, day, day)
	if err != nil {
		return nil, err
	}
	activities := make([]domain.Activity, 0, len(events))
	for _, e := range events {
		activities = append(activities, s.activityFromEvent(e, dateOnly(day), e.DurationHours()))
	}
	return activities, nil
}

// csvHeaderAliases maps the column names of US and BR Outlook exports onto
// canonical keys.
var csvHeaderAliases = map[string]string{
	"Subject":         "subject",
	"Assunto":         "subject",
	"Start Date":      "start_date",
	"Data de Início":  "start_date",
	"Start Time":      "start_time",
	"Hora de Início":  "start_time",
	"End Date":        "end_date",
	"Data de Término": "end_date",
	"End Time":        "end_time",
	"Hora de Término": "end_time",
	"Categories":      "categories",
	"Categorias":      "categories",
}

func parseOutlookCSV(path string) ([]domain.CalendarEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	// Exports from Windows carry a UTF-8 BOM on the first header cell.
	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	index := map[string]int{}
	for i, name := range header {
		if key, ok := csvHeaderAliases[strings.TrimSpace(name)]; ok {
			index[key] = i
		}
	}

	cell := func(row []string, key string) string {
		i, ok := index[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var events []domain.CalendarEvent
	for _, row := range records[1:] {
		subject := cell(row, "subject")
		startDate := cell(row, "start_date")
		if subject == "" || startDate == "" {
			continue
		}
		start, err := parseCSVDateTime(startDate, cell(row, "start_time"))
		if err != nil {
			continue
		}
		endDate := cell(row, "end_date")
		if endDate == "" {
			endDate = startDate
		}
		end, err := parseCSVDateTime(endDate, cell(row, "end_time"))
		if err != nil {
			continue
		}
		var categories []string
		for _, c := range strings.Split(cell(row, "categories"), ";") {
			if c = strings.TrimSpace(c); c != "" {
				categories = append(categories, c)
			}
		}
		events = append(events, domain.CalendarEvent{
			Subject:    subject,
			Start:      start,
			End:        end,
			Categories: categories,
		})
	}
	return events, nil
}

var csvDateLayouts = []string{"01/02/2006", "02/01/2006", "2006-01-02"}
var csvTimeLayouts = []string{"15:04:05", "15:04", "3:04:05 PM", "3:04 PM"}

func parseCSVDateTime(dateStr, timeStr string) (time.Time, error) {
	var day time.Time
	var err error
	for _, layout := range csvDateLayouts {
		if day, err = time.Parse(layout, dateStr); err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q", dateStr)
	}
	if timeStr == "" {
		return day, nil
	}
	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, timeStr); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(),
				t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
		}
	}
	// Unparseable times fall back to midnight, same as a missing column.
	return day, nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func roundHours(h float64) float64 {
	return math.Round(h*100) / 100
}
