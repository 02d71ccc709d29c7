package devserver

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/good-yellow-bee/taskflow/internal/models"
)

// Seed replaces all data with sample users, projects and tasks. Every seeded
// account uses SeedPassword.
//
//	admin@example.com  (admin)   owns "Website Redesign" and "Internal Tools"
//	user1@example.com  (client)  owns "Mobile App", viewer on "Website Redesign"
//	user2@example.com  (client)  viewer on "Website Redesign" and "Mobile App"
func (s *store) Seed() error {
	hash, err := bcrypt.GenerateFromPassword([]byte(SeedPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()

	admin, _ := s.insertUserLocked("admin", "admin@example.com", hash, models.RoleAdmin)
	user1, _ := s.insertUserLocked("user1", "user1@example.com", hash, models.RoleClient)
	user2, _ := s.insertUserLocked("user2", "user2@example.com", hash, models.RoleClient)

	web := s.insertProjectLocked(admin.ID, "Website Redesign", "Refresh the marketing site", "#3B82F6")
	mobile := s.insertProjectLocked(user1.ID, "Mobile App", "iOS and Android client", "#10B981")
	tools := s.insertProjectLocked(admin.ID, "Internal Tools", "Admin dashboards and scripts", "#F59E0B")

	s.projects[web.ID].members[user1.ID] = models.ProjectRoleViewer
	s.projects[web.ID].members[user2.ID] = models.ProjectRoleViewer
	s.projects[mobile.ID].members[user2.ID] = models.ProjectRoleViewer

	deadline := func(days int) models.Timestamp {
		return models.Timestamp{Time: time.Now().UTC().AddDate(0, 0, days).Truncate(24 * time.Hour)}
	}

	seedTasks := []models.Task{
		{ProjectID: web.ID, Title: "Design new homepage", Priority: models.PriorityHigh, Category: models.CategoryFeature, Status: models.StatusInProgress, DeadlineDate: deadline(7), Assignees: models.UserIDs{admin.ID, user1.ID}},
		{ProjectID: web.ID, Title: "Fix navigation on small screens", Priority: models.PriorityMedium, Category: models.CategoryBug, Status: models.StatusToDo, DeadlineDate: deadline(3), Assignees: models.UserIDs{user2.ID}},
		{ProjectID: mobile.ID, Title: "Push notifications", Priority: models.PriorityCritical, Category: models.CategoryFeature, Status: models.StatusToDo, DeadlineDate: deadline(14), Assignees: models.UserIDs{user1.ID}},
		{ProjectID: mobile.ID, Title: "Write onboarding docs", Priority: models.PriorityLow, Category: models.CategoryDocumentation, Status: models.StatusReview},
		{ProjectID: tools.ID, Title: "Nightly backup report", Priority: models.PriorityMedium, Category: models.CategoryImprovement, Status: models.StatusDone},
	}
	for _, t := range seedTasks {
		created, err := s.insertTaskLocked(t)
		if err != nil {
			return fmt.Errorf("seed task %q: %w", t.Title, err)
		}
		if created.ProjectID == web.ID && created.Priority == models.PriorityHigh {
			sub := models.Task{ProjectID: web.ID, Title: "Collect hero images", Priority: models.PriorityLow, Category: models.CategoryFeature, ParentID: &created.ID}
			if _, err := s.insertTaskLocked(sub); err != nil {
				return fmt.Errorf("seed subtask: %w", err)
			}
		}
	}
	return nil
}
