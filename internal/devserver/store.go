package devserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/good-yellow-bee/taskflow/internal/models"
)

var (
	errNotFound     = errors.New("not found")
	errConflict     = errors.New("already exists")
	errBadPassword  = errors.New("invalid credentials")
	errOwnerRemoval = errors.New("cannot remove project owner")
)

// SeedPassword is the password of every account created by Seed.
const SeedPassword = "password123"

type userRecord struct {
	models.User
	passwordHash []byte
}

type projectRecord struct {
	models.Project
	members map[int64]models.ProjectRole // excludes the owner
}

type taskRecord struct {
	models.Task
}

// store is the in-memory backend state.
type store struct {
	mu         sync.RWMutex
	bcryptCost int
	seq        map[string]int64

	users    map[int64]*userRecord
	projects map[int64]*projectRecord
	tasks    map[int64]*taskRecord
	comments map[int64]*models.Comment
}

func newStore(bcryptCost int) *store {
	s := &store{bcryptCost: bcryptCost}
	s.reset()
	return s
}

func (s *store) reset() {
	s.seq = make(map[string]int64)
	s.users = make(map[int64]*userRecord)
	s.projects = make(map[int64]*projectRecord)
	s.tasks = make(map[int64]*taskRecord)
	s.comments = make(map[int64]*models.Comment)
}

// id returns the next id in kind's sequence.
func (s *store) id(kind string) int64 {
	s.seq[kind]++
	return s.seq[kind]
}

func (s *store) createUser(username, email, password string, role models.Role) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertUserLocked(username, email, hash, role)
}

func (s *store) insertUserLocked(username, email string, hash []byte, role models.Role) (*models.User, error) {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) || u.Username == username {
			return nil, errConflict
		}
	}
	u := &userRecord{
		User:         models.User{ID: s.id("user"), Username: username, Email: email, Role: role},
		passwordHash: hash,
	}
	s.users[u.ID] = u
	out := u.User
	return &out, nil
}

func (s *store) authenticate(email, password string) (*models.User, error) {
	s.mu.RLock()
	var found *userRecord
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			found = u
			break
		}
	}
	s.mu.RUnlock()

	if found == nil {
		return nil, errBadPassword
	}
	if err := bcrypt.CompareHashAndPassword(found.passwordHash, []byte(password)); err != nil {
		return nil, errBadPassword
	}
	out := found.User
	return &out, nil
}

func (s *store) user(id int64) (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	out := u.User
	return &out, true
}

func (s *store) listUsers() []*models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		cp := u.User
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// roleLocked returns the user's role in p and whether they have one.
func roleLocked(p *projectRecord, userID int64) (models.ProjectRole, bool) {
	if p.OwnerID == userID {
		return models.ProjectRoleOwner, true
	}
	role, ok := p.members[userID]
	return role, ok
}

func (s *store) projectRole(projectID, userID int64) (models.ProjectRole, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return "", false, errNotFound
	}
	role, ok := roleLocked(p, userID)
	return role, ok, nil
}

func (s *store) createProject(owner int64, name, description, color string) *models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertProjectLocked(owner, name, description, color)
}

func (s *store) insertProjectLocked(owner int64, name, description, color string) *models.Project {
	if color == "" {
		color = models.DefaultProjectColor
	}
	p := &projectRecord{
		Project: models.Project{
			ID:           s.id("project"),
			Name:         name,
			Description:  description,
			Color:        color,
			OwnerID:      owner,
			CreationDate: models.Timestamp{Time: time.Now().UTC()},
		},
		members: make(map[int64]models.ProjectRole),
	}
	s.projects[p.ID] = p
	out := p.Project
	return &out
}

func (s *store) project(id int64) (*models.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, false
	}
	out := p.Project
	return &out, true
}

// projectsFor returns projects owned by or shared with userID.
func (s *store) projectsFor(userID int64) []*models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Project
	for _, p := range s.projects {
		if _, ok := roleLocked(p, userID); ok {
			cp := p.Project
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *store) updateProject(id int64, fn func(*models.Project)) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, errNotFound
	}
	fn(&p.Project)
	out := p.Project
	return &out, nil
}

func (s *store) deleteProject(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return errNotFound
	}
	delete(s.projects, id)
	for tid, t := range s.tasks {
		if t.ProjectID == id {
			s.deleteTaskLocked(tid)
		}
	}
	return nil
}

// listMembers lists the project's members with the owner first.
func (s *store) listMembers(projectID int64) ([]*models.ProjectMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, errNotFound
	}

	out := make([]*models.ProjectMember, 0, len(p.members)+1)
	if owner, ok := s.users[p.OwnerID]; ok {
		out = append(out, &models.ProjectMember{
			ProjectID: projectID, UserID: owner.ID, Username: owner.Username,
			Email: owner.Email, ProjectRole: models.ProjectRoleOwner,
		})
	}
	ids := make([]int64, 0, len(p.members))
	for id := range p.members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		u, ok := s.users[id]
		if !ok {
			continue
		}
		out = append(out, &models.ProjectMember{
			ProjectID: projectID, UserID: u.ID, Username: u.Username,
			Email: u.Email, ProjectRole: p.members[id],
		})
	}
	return out, nil
}

func (s *store) addMember(projectID, userID int64, role models.ProjectRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return errNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return errNotFound
	}
	if _, ok := roleLocked(p, userID); ok {
		return errConflict
	}
	p.members[userID] = role
	return nil
}

func (s *store) setMemberRole(projectID, userID int64, role models.ProjectRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return errNotFound
	}
	if p.OwnerID == userID {
		return errOwnerRemoval
	}
	if _, ok := p.members[userID]; !ok {
		return errNotFound
	}
	p.members[userID] = role
	return nil
}

func (s *store) removeMember(projectID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return errNotFound
	}
	if p.OwnerID == userID {
		return errOwnerRemoval
	}
	if _, ok := p.members[userID]; !ok {
		return errNotFound
	}
	delete(p.members, userID)
	return nil
}

func (s *store) createTask(t models.Task) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTaskLocked(t)
}

func (s *store) insertTaskLocked(t models.Task) (*models.Task, error) {
	if _, ok := s.projects[t.ProjectID]; !ok {
		return nil, errNotFound
	}
	if t.ParentID != nil {
		parent, ok := s.tasks[*t.ParentID]
		if !ok || parent.ProjectID != t.ProjectID {
			return nil, errNotFound
		}
	}
	t.ID = s.id("task")
	t.CreationDate = models.Timestamp{Time: time.Now().UTC()}
	if t.Status == "" {
		t.Status = models.StatusToDo
	}
	s.tasks[t.ID] = &taskRecord{Task: t}
	out := t
	return &out, nil
}

func (s *store) task(id int64) (*models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	out := t.Task
	return &out, true
}

// tasksFor returns the tasks visible to userID that match filter.
func (s *store) tasksFor(userID int64, filter models.TaskFilter) []*models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Task
	for _, t := range s.tasks {
		p, ok := s.projects[t.ProjectID]
		if !ok {
			continue
		}
		if _, ok := roleLocked(p, userID); !ok {
			continue
		}
		if !matches(&t.Task, filter) {
			continue
		}
		cp := t.Task
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func matches(t *models.Task, f models.TaskFilter) bool {
	if f.ProjectID != 0 && t.ProjectID != f.ProjectID {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.AssigneeID != 0 && !t.Assignees.Contains(f.AssigneeID) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), q) && !strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	return true
}

func (s *store) updateTask(id int64, fn func(*models.Task)) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errNotFound
	}
	fn(&t.Task)
	out := t.Task
	return &out, nil
}

func (s *store) deleteTask(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return errNotFound
	}
	s.deleteTaskLocked(id)
	return nil
}

// deleteTaskLocked removes a task with its subtasks and comments.
func (s *store) deleteTaskLocked(id int64) {
	delete(s.tasks, id)
	for cid, c := range s.comments {
		if c.TaskID == id {
			delete(s.comments, cid)
		}
	}
	for childID, child := range s.tasks {
		if child.ParentID != nil && *child.ParentID == id {
			s.deleteTaskLocked(childID)
		}
	}
}

// setAssignees replaces a task's assignees. Every user must be a project
// member.
func (s *store) setAssignees(taskID int64, userIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return errNotFound
	}
	p := s.projects[t.ProjectID]
	for _, id := range userIDs {
		if _, ok := roleLocked(p, id); !ok {
			return errNotFound
		}
	}
	t.Assignees = append(models.UserIDs{}, userIDs...)
	return nil
}

func (s *store) addComment(taskID, authorID int64, text string) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return nil, errNotFound
	}
	c := &models.Comment{
		ID:           s.id("comment"),
		TaskID:       taskID,
		AuthorID:     authorID,
		Text:         text,
		CreationDate: models.Timestamp{Time: time.Now().UTC()},
	}
	s.comments[c.ID] = c
	out := *c
	return &out, nil
}

// listComments returns a task's comments, newest first.
func (s *store) listComments(taskID int64) []*models.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Comment
	for _, c := range s.comments {
		if c.TaskID == taskID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// comment returns a comment with the project its task belongs to.
func (s *store) comment(id int64) (*models.Comment, int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[id]
	if !ok {
		return nil, 0, false
	}
	t, ok := s.tasks[c.TaskID]
	if !ok {
		return nil, 0, false
	}
	out := *c
	return &out, t.ProjectID, true
}

func (s *store) updateComment(id int64, text string) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return nil, errNotFound
	}
	c.Text = text
	out := *c
	return &out, nil
}

func (s *store) deleteComment(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[id]; !ok {
		return errNotFound
	}
	delete(s.comments, id)
	return nil
}
