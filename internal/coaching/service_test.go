package coaching_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/coachdesk/coachdesk/internal/coaching"
	"github.com/coachdesk/coachdesk/internal/platform/cache"
	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/shared"
	_ "github.com/coachdesk/coachdesk/testing"
)

type stubSessionRepo struct {
	sessions    map[int64]*coaching.Session
	notes       []coaching.QuickNote
	nextID      int64
	lastVisible []int64
	noteReads   int
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{sessions: map[int64]*coaching.Session{}, nextID: 1}
}

func (s *stubSessionRepo) ListSessions(ctx context.Context, agentIDs []int64, status coaching.SessionStatus, limit, offset int) ([]coaching.Session, int, error) {
	s.lastVisible = agentIDs
	var out []coaching.Session
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	return out, len(out), nil
}

func (s *stubSessionRepo) GetSession(ctx context.Context, id int64) (*coaching.Session, error) {
	if sess, ok := s.sessions[id]; ok {
		copied := *sess
		return &copied, nil
	}
	return nil, shared.ErrNotFound
}

func (s *stubSessionRepo) CreateSession(ctx context.Context, sess *coaching.Session) error {
	sess.ID = s.nextID
	s.nextID++
	stored := *sess
	s.sessions[sess.ID] = &stored
	return nil
}

func (s *stubSessionRepo) UpdateSession(ctx context.Context, sess *coaching.Session) error {
	if _, ok := s.sessions[sess.ID]; !ok {
		return shared.ErrNotFound
	}
	stored := *sess
	s.sessions[sess.ID] = &stored
	return nil
}

func (s *stubSessionRepo) DeleteSession(ctx context.Context, id int64) error {
	if _, ok := s.sessions[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *stubSessionRepo) ListNotes(ctx context.Context, agentID int64, limit int) ([]coaching.QuickNote, error) {
	s.noteReads++
	var out []coaching.QuickNote
	for _, n := range s.notes {
		if n.AgentID == agentID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *stubSessionRepo) InsertNote(ctx context.Context, n *coaching.QuickNote) error {
	n.ID = s.nextID
	s.nextID++
	s.notes = append(s.notes, *n)
	return nil
}

type recordingNotifier struct {
	completed []coaching.Session
}

func (r *recordingNotifier) SessionCompleted(ctx context.Context, session coaching.Session) {
	r.completed = append(r.completed, session)
}

type noPerms struct{}

func (noPerms) RolePermissions(ctx context.Context, role rbac.Role) ([]string, error) {
	return nil, nil
}

type teamDirectory struct{}

func (teamDirectory) AgentIDs(ctx context.Context, teamLeaderID int64) ([]int64, error) {
	if teamLeaderID == 10 {
		return []int64{100, 101}, nil
	}
	return nil, nil
}

func (teamDirectory) OrgMemberIDs(ctx context.Context, managerID int64) ([]int64, error) {
	if managerID == 1 {
		return []int64{10, 100, 101}, nil
	}
	return nil, nil
}

type coachingFixture struct {
	svc      *coaching.Service
	repo     *stubSessionRepo
	notifier *recordingNotifier
	mr       *miniredis.Miniredis
	store    *cache.Store
}

func newCoachingFixture(t *testing.T) *coachingFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := cache.NewStore(client, nil)
	store.Start(context.Background())

	repo := newStubSessionRepo()
	notifier := &recordingNotifier{}
	gate := rbac.NewGate(noPerms{}, teamDirectory{})
	svc := coaching.NewService(repo, gate, teamDirectory{}, store, notifier)
	return &coachingFixture{svc: svc, repo: repo, notifier: notifier, mr: mr, store: store}
}

func scheduledSession(f *coachingFixture, agentID, coachID int64) *coaching.Session {
	sess := &coaching.Session{
		AgentID:     agentID,
		CoachID:     coachID,
		ScheduledAt: time.Now().Add(24 * time.Hour),
		Status:      coaching.StatusScheduled,
	}
	_ = f.repo.CreateSession(context.Background(), sess)
	return sess
}

var leader = rbac.Principal{ID: 10, Role: rbac.RoleTeamLeader}

func TestScheduleRequiresAgentInScope(t *testing.T) {
	f := newCoachingFixture(t)
	ctx := context.Background()

	input := coaching.SessionInput{AgentID: 100, ScheduledAt: time.Now().Add(time.Hour)}
	sess, err := f.svc.Schedule(ctx, leader, input)
	if err != nil {
		t.Fatalf("schedule in scope: %v", err)
	}
	if sess.Status != coaching.StatusScheduled || sess.CoachID != 10 {
		t.Fatalf("unexpected session %+v", sess)
	}

	input.AgentID = 999
	if _, err := f.svc.Schedule(ctx, leader, input); !errors.Is(err, httpx.ErrForbidden) {
		t.Fatalf("expected forbidden for out-of-scope agent, got %v", err)
	}
}

func TestCoachAlwaysSeesOwnSession(t *testing.T) {
	f := newCoachingFixture(t)
	// Coach 77 is outside agent 100's hierarchy but created the session.
	sess := scheduledSession(f, 100, 77)

	got, err := f.svc.GetSession(context.Background(), rbac.Principal{ID: 77, Role: rbac.RoleTeamLeader}, sess.ID)
	if err != nil {
		t.Fatalf("coach fetch: %v", err)
	}
	if got.ID != sess.ID {
		t.Fatalf("unexpected session %+v", got)
	}

	stranger := rbac.Principal{ID: 88, Role: rbac.RoleTeamLeader}
	if _, err := f.svc.GetSession(context.Background(), stranger, sess.ID); !errors.Is(err, httpx.ErrForbidden) {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}
}

func TestCompletedSessionsAreImmutable(t *testing.T) {
	f := newCoachingFixture(t)
	sess := scheduledSession(f, 100, 10)
	sess.Status = coaching.StatusCompleted
	_ = f.repo.UpdateSession(context.Background(), sess)

	input := coaching.SessionInput{AgentID: 100, ScheduledAt: time.Now()}
	_, err := f.svc.Update(context.Background(), leader, sess.ID, input, coaching.StatusCancelled)
	if !errors.Is(err, httpx.ErrValidation) {
		t.Fatalf("expected validation error on update, got %v", err)
	}

	if err := f.svc.Delete(context.Background(), leader, sess.ID); !errors.Is(err, httpx.ErrValidation) {
		t.Fatalf("expected validation error on delete, got %v", err)
	}
}

func TestCompletingSessionNotifiesAndInvalidates(t *testing.T) {
	f := newCoachingFixture(t)
	ctx := context.Background()
	sess := scheduledSession(f, 100, 10)

	f.store.Set(ctx, cache.AgentInsightsKey(100), []byte("stale"), 0)

	input := coaching.SessionInput{
		AgentID:     100,
		ScheduledAt: sess.ScheduledAt,
		Summary:     "Focused on call openings.",
	}
	updated, err := f.svc.Update(ctx, leader, sess.ID, input, coaching.StatusCompleted)
	if err != nil {
		t.Fatalf("complete session: %v", err)
	}
	if updated.Status != coaching.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", updated.Status)
	}
	if len(f.notifier.completed) != 1 || f.notifier.completed[0].ID != sess.ID {
		t.Fatalf("expected completion notification, got %+v", f.notifier.completed)
	}
	if f.mr.Exists(cache.AgentInsightsKey(100)) {
		t.Fatalf("expected insight cache invalidated")
	}

	// A second completion attempt hits the immutability rule, not the notifier.
	if _, err := f.svc.Update(ctx, leader, sess.ID, input, coaching.StatusCompleted); !errors.Is(err, httpx.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.notifier.completed) != 1 {
		t.Fatalf("expected no duplicate notification")
	}
}

func TestVisibleSessionsScoping(t *testing.T) {
	f := newCoachingFixture(t)
	ctx := context.Background()

	cases := []struct {
		name      string
		principal rbac.Principal
		want      []int64
	}{
		{"admin unrestricted", rbac.Principal{ID: 5, Role: rbac.RoleAdmin}, nil},
		{"agent self only", rbac.Principal{ID: 100, Role: rbac.RoleAgent}, []int64{100}},
		{"team leader team", leader, []int64{100, 101}},
		{"manager organisation", rbac.Principal{ID: 1, Role: rbac.RoleManager}, []int64{10, 100, 101}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := f.svc.VisibleSessions(ctx, tc.principal, "", 1, 20); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := f.repo.lastVisible
			if tc.want == nil {
				if got != nil {
					t.Fatalf("expected unrestricted, got %v", got)
				}
				return
			}
			if len(got) != len(tc.want) {
				t.Fatalf("visible = %v, want %v", got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("visible = %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestNotesCachedAndInvalidatedOnWrite(t *testing.T) {
	f := newCoachingFixture(t)
	ctx := context.Background()
	f.repo.notes = []coaching.QuickNote{{ID: 1, AgentID: 100, AuthorID: 10, Body: "strong greeting"}}

	first, err := f.svc.NotesForAgent(ctx, leader, 100)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected one note, got %v", first)
	}
	if _, err := f.svc.NotesForAgent(ctx, leader, 100); err != nil {
		t.Fatalf("second read: %v", err)
	}
	if f.repo.noteReads != 1 {
		t.Fatalf("expected cached second read, repo read %d times", f.repo.noteReads)
	}

	if _, err := f.svc.AddNote(ctx, leader, 100, "follow up on hold times"); err != nil {
		t.Fatalf("add note: %v", err)
	}
	if f.mr.Exists(cache.QuickNotesKey(100)) {
		t.Fatalf("expected note cache invalidated after write")
	}

	third, err := f.svc.NotesForAgent(ctx, leader, 100)
	if err != nil {
		t.Fatalf("third read: %v", err)
	}
	if len(third) != 2 {
		t.Fatalf("expected refreshed notes, got %v", third)
	}
}

func TestAddNoteValidatesBody(t *testing.T) {
	f := newCoachingFixture(t)
	ctx := context.Background()

	if _, err := f.svc.AddNote(ctx, leader, 100, ""); !errors.Is(err, httpx.ErrValidation) {
		t.Fatalf("expected validation error for empty body, got %v", err)
	}
	long := strings.Repeat("x", 2001)
	if _, err := f.svc.AddNote(ctx, leader, 100, long); !errors.Is(err, httpx.ErrValidation) {
		t.Fatalf("expected validation error for oversized body, got %v", err)
	}
}
