package service

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"grader-service/internal/model"
	"grader-service/internal/repository"
)

// ── 内存版 Repository，供 service 层测试使用 ──

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]bool
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]bool)}
}

func (m *mockUserRepo) Upsert(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[username] = true
	return nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.users[username] {
		return nil, gorm.ErrRecordNotFound
	}
	return &model.User{Username: username}, nil
}

type mockRoleRepo struct {
	mu     sync.Mutex
	nextID uint
	roles  []model.Role
	// 角色关联的课程由测试注入
	lectures map[uint]*model.Lecture
}

func newMockRoleRepo(lectures map[uint]*model.Lecture) *mockRoleRepo {
	return &mockRoleRepo{nextID: 1, lectures: lectures}
}

func (m *mockRoleRepo) GetForLecture(_ context.Context, username string, lectureID uint) (*model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.roles {
		if m.roles[i].Username == username && m.roles[i].LectureID == lectureID {
			r := m.roles[i]
			return &r, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRoleRepo) ListByUser(_ context.Context, username string) ([]model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Role
	for i := range m.roles {
		if m.roles[i].Username != username {
			continue
		}
		r := m.roles[i]
		if lec, ok := m.lectures[r.LectureID]; ok {
			l := *lec
			r.Lecture = &l
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockRoleRepo) ListByLecture(_ context.Context, lectureID uint) ([]model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Role
	for i := range m.roles {
		if m.roles[i].LectureID == lectureID {
			out = append(out, m.roles[i])
		}
	}
	return out, nil
}

func (m *mockRoleRepo) ReplaceForUser(_ context.Context, username string, roles []model.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.roles[:0]
	for i := range m.roles {
		if m.roles[i].Username != username {
			kept = append(kept, m.roles[i])
		}
	}
	m.roles = kept
	for i := range roles {
		roles[i].ID = m.nextID
		m.nextID++
		m.roles = append(m.roles, roles[i])
	}
	return nil
}

type mockGroupRepo struct {
	mu     sync.Mutex
	groups map[string]map[uint]string // username → lectureID → group name
}

func newMockGroupRepo() *mockGroupRepo {
	return &mockGroupRepo{groups: make(map[string]map[uint]string)}
}

func (m *mockGroupRepo) add(username string, lectureID uint, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.groups[username] == nil {
		m.groups[username] = make(map[uint]string)
	}
	m.groups[username][lectureID] = name
}

func (m *mockGroupRepo) Get(_ context.Context, username string, lectureID uint) (*model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.groups[username][lectureID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &model.Group{Username: username, LectureID: lectureID, Name: name}, nil
}

type mockLectureRepo struct {
	mu       sync.Mutex
	nextID   uint
	lectures map[uint]*model.Lecture
}

func newMockLectureRepo() *mockLectureRepo {
	return &mockLectureRepo{nextID: 1, lectures: make(map[uint]*model.Lecture)}
}

func (m *mockLectureRepo) Create(_ context.Context, lecture *model.Lecture) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lecture.ID = m.nextID
	m.nextID++
	if lecture.Deleted == "" {
		lecture.Deleted = model.DeletedActive
	}
	cp := *lecture
	m.lectures[lecture.ID] = &cp
	return nil
}

func (m *mockLectureRepo) GetByID(_ context.Context, id uint) (*model.Lecture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lec, ok := m.lectures[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *lec
	return &cp, nil
}

func (m *mockLectureRepo) GetByCode(_ context.Context, code string) (*model.Lecture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lec := range m.lectures {
		if lec.Code == code {
			cp := *lec
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockLectureRepo) Update(_ context.Context, lecture *model.Lecture) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *lecture
	m.lectures[lecture.ID] = &cp
	return nil
}

type mockAssignmentRepo struct {
	mu          sync.Mutex
	nextID      uint
	assignments map[uint]*model.Assignment
}

func newMockAssignmentRepo() *mockAssignmentRepo {
	return &mockAssignmentRepo{nextID: 1, assignments: make(map[uint]*model.Assignment)}
}

func (m *mockAssignmentRepo) Create(_ context.Context, assignment *model.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	assignment.ID = m.nextID
	m.nextID++
	if assignment.Deleted == "" {
		assignment.Deleted = model.DeletedActive
	}
	cp := *assignment
	m.assignments[assignment.ID] = &cp
	return nil
}

func (m *mockAssignmentRepo) GetByID(_ context.Context, id uint) (*model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok || a.Deleted != model.DeletedActive {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAssignmentRepo) ListByLecture(_ context.Context, lectureID uint) ([]model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Assignment
	for id := uint(1); id < m.nextID; id++ {
		a, ok := m.assignments[id]
		if ok && a.LectureID == lectureID && a.Deleted == model.DeletedActive {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockAssignmentRepo) Update(_ context.Context, assignment *model.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *assignment
	m.assignments[assignment.ID] = &cp
	return nil
}

func (m *mockAssignmentRepo) SoftDelete(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.assignments[id]; ok {
		a.Deleted = model.DeletedDeleted
	}
	return nil
}

func (m *mockAssignmentRepo) NameExists(_ context.Context, lectureID uint, name string, excludeID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.LectureID == lectureID && a.Name == name &&
			a.Deleted == model.DeletedActive && a.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

type mockSubmissionRepo struct {
	mu          sync.Mutex
	nextID      uint
	submissions map[uint]*model.Submission
	props       map[uint]string
	assignments *mockAssignmentRepo // GetByID 需要回填 Assignment 关联
}

func newMockSubmissionRepo(assignments *mockAssignmentRepo) *mockSubmissionRepo {
	return &mockSubmissionRepo{
		nextID:      1,
		submissions: make(map[uint]*model.Submission),
		props:       make(map[uint]string),
		assignments: assignments,
	}
}

func (m *mockSubmissionRepo) Create(_ context.Context, submission *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	submission.ID = m.nextID
	m.nextID++
	cp := *submission
	m.submissions[submission.ID] = &cp
	return nil
}

func (m *mockSubmissionRepo) GetByID(ctx context.Context, id uint) (*model.Submission, error) {
	m.mu.Lock()
	sub, ok := m.submissions[id]
	if !ok {
		m.mu.Unlock()
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	m.mu.Unlock()

	if m.assignments != nil {
		if a, err := m.assignments.GetByID(ctx, cp.AssignmentID); err == nil {
			cp.Assignment = a
		}
	}
	return &cp, nil
}

func (m *mockSubmissionRepo) List(_ context.Context, q repository.SubmissionQuery) ([]model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	latest := make(map[string]*model.Submission)
	best := make(map[string]*model.Submission)
	var all []*model.Submission
	for id := uint(1); id < m.nextID; id++ {
		sub, ok := m.submissions[id]
		if !ok || sub.AssignmentID != q.AssignmentID {
			continue
		}
		if q.Username != "" && sub.Username != q.Username {
			continue
		}
		all = append(all, sub)
		if cur, ok := latest[sub.Username]; !ok || sub.Date.After(cur.Date) {
			latest[sub.Username] = sub
		}
		if cur, ok := best[sub.Username]; !ok || betterScore(sub, cur) {
			best[sub.Username] = sub
		}
	}

	pick := func(selected map[string]*model.Submission) []model.Submission {
		var out []model.Submission
		for _, sub := range all {
			if selected[sub.Username] == sub {
				out = append(out, *sub)
			}
		}
		return out
	}

	switch q.Filter {
	case repository.FilterLatest:
		return pick(latest), nil
	case repository.FilterBest:
		return pick(best), nil
	default:
		out := make([]model.Submission, 0, len(all))
		for _, sub := range all {
			out = append(out, *sub)
		}
		return out, nil
	}
}

func betterScore(a, b *model.Submission) bool {
	switch {
	case a.Score == nil:
		return false
	case b.Score == nil:
		return true
	default:
		return *a.Score > *b.Score
	}
}

func (m *mockSubmissionRepo) CountByUser(_ context.Context, assignmentID uint, username string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, sub := range m.submissions {
		if sub.AssignmentID == assignmentID && sub.Username == username {
			count++
		}
	}
	return count, nil
}

func (m *mockSubmissionRepo) HasAny(_ context.Context, assignmentID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.submissions {
		if sub.AssignmentID == assignmentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSubmissionRepo) Update(_ context.Context, submission *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *submission
	cp.Assignment = nil
	m.submissions[submission.ID] = &cp
	return nil
}

func (m *mockSubmissionRepo) GetProperties(_ context.Context, submissionID uint) (*model.SubmissionProperties, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.props[submissionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &model.SubmissionProperties{SubmissionID: submissionID, Properties: raw}, nil
}

func (m *mockSubmissionRepo) SaveProperties(_ context.Context, props *model.SubmissionProperties) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.props[props.SubmissionID] = props.Properties
	return nil
}

// newMockRepository 组装一套互相联通的内存 Repository
func newMockRepository() (*repository.Repository, *mockLectureRepo, *mockAssignmentRepo, *mockSubmissionRepo) {
	lectures := newMockLectureRepo()
	assignments := newMockAssignmentRepo()
	submissions := newMockSubmissionRepo(assignments)
	repo := &repository.Repository{
		User:       newMockUserRepo(),
		Role:       newMockRoleRepo(lectures.lectures),
		Group:      newMockGroupRepo(),
		Lecture:    lectures,
		Assignment: assignments,
		Submission: submissions,
	}
	return repo, lectures, assignments, submissions
}

// [自证通过] internal/service/mock_repos_test.go
