package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"boardfill/internal/config"
	"boardfill/internal/domain"
)

// commitHours is the fixed effort booked per commit.
const commitHours = 0.5

// Git turns each of the author's commits into one activity.
type Git struct {
	cfg         config.GitConfig
	backend     CommitBackend
	authorEmail string
}

func NewGit(cfg config.GitConfig, backend CommitBackend, authorEmail string) *Git {
	return &Git{cfg: cfg, backend: backend, authorEmail: authorEmail}
}

func (s *Git) Kind() domain.SourceKind { return domain.SourceGit }
func (s *Git) Name() string            { return "Azure Git" }
func (s *Git) Enabled() bool           { return s.cfg.Enabled }

func (s *Git) Collect(ctx context.Context, day time.Time) ([]domain.Activity, error) {
	if s.backend == nil {
		return nil, fmt.Errorf("work tracking client not configured")
	}
	var activities []domain.Activity
	for _, repo := range s.cfg.Repositories {
		commits, err := s.backend.Commits(ctx, repo.Name, repo.Project, s.authorEmail, day, day)
		if err != nil {
			return nil, fmt.Errorf("list commits in %s: %w", repo.Name, err)
		}
		for _, c := range commits {
			activities = append(activities, commitActivity(c, dateOnly(day), repo))
		}
	}
	return activities, nil
}

func commitActivity(c domain.Commit, day time.Time, repo config.GitRepository) domain.Activity {
	message := strings.TrimSpace(strings.SplitN(c.Message, "\n", 2)[0])
	return domain.Activity{
		Title:  fmt.Sprintf("[%s] %s", repo.Name, message),
		Source: domain.SourceGit,
		Date:   day,
		Hours:  commitHours,
		Description: fmt.Sprintf("Commit realizado no repositório %s.\nHash: %s\nMensagem: %s",
			repo.Name, c.ID, message),
		AreaPath:  repo.AreaPath,
		Tags:      append([]string(nil), repo.Tags...),
		StartedAt: c.Date,
	}
}

func (s *Git) TestConnection(ctx context.Context) bool {
	if len(s.cfg.Repositories) == 0 || s.backend == nil {
		return false
	}
	return s.backend.TestConnection(ctx) == nil
}

// CommitsInRange lists the author's commits per repository over a window,
// optionally narrowed to one repository. Used by reporting commands.
func (s *Git) CommitsInRange(ctx context.Context, from, to time.Time, repository string) (map[string][]domain.Commit, error) {
	if s.backend == nil {
		return nil, fmt.Errorf("work tracking client not configured")
	}
	result := map[string][]domain.Commit{}
	for _, repo := range s.cfg.Repositories {
		if repository != "" && repo.Name != repository {
			continue
		}
		commits, err := s.backend.Commits(ctx, repo.Name, repo.Project, s.authorEmail, from, to)
		if err != nil {
			return nil, fmt.Errorf("list commits in %s: %w", repo.Name, err)
		}
		if len(commits) > 0 {
			result[repo.Name] = commits
		}
	}
	return result, nil
}
