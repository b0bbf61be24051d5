package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"

	"gopanel/api"
	"gopanel/chat"
	"gopanel/domain"
	"gopanel/session"
)

const devSecret = "dev-secret"

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger
}

func devToken(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(devSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func startServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(NewDevAuth([]byte(devSecret)), quietLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func clientFor(t *testing.T, ts *httptest.Server, user string) *api.Client {
	t.Helper()
	return api.NewClient(ts.URL+"/api", session.Static(devToken(t, user)), quietLogger())
}

func strptr(s string) *string { return &s }

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	_, ts := startServer(t)

	resp, err := http.Get(ts.URL + "/api/tasks")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestExpiredTokenIsRejected(t *testing.T) {
	_, ts := startServer(t)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, _ := tok.SignedString([]byte(devSecret))
	client := api.NewClient(ts.URL+"/api", session.Static(signed), quietLogger())
	if _, err := client.ListBoards(context.Background()); err != api.ErrUnauthorized {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestBoardLifecycleAndInvites(t *testing.T) {
	_, ts := startServer(t)
	ann := clientFor(t, ts, "ann")
	bob := clientFor(t, ts, "bob")
	ctx := context.Background()

	board, err := ann.CreateBoard(ctx, domain.Board{Title: "Roadmap", Type: domain.TemplateSmart})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	if board.ID == "" || board.InviteCode == "" || board.UserID != "ann" {
		t.Fatalf("board not filled in: %+v", board)
	}

	// Bob sees nothing until he joins by invite code.
	if boards, _ := bob.ListBoards(ctx); len(boards) != 0 {
		t.Fatalf("bob sees %d boards before joining", len(boards))
	}
	joined, err := bob.JoinBoard(ctx, board.InviteCode)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.ID != board.ID {
		t.Fatalf("joined %q, want %q", joined.ID, board.ID)
	}
	boards, err := bob.ListBoards(ctx)
	if err != nil || len(boards) != 1 {
		t.Fatalf("bob boards = %v (%v)", boards, err)
	}

	if _, err := bob.JoinBoard(ctx, "bogus"); err == nil {
		t.Fatal("expected error for unknown invite code")
	}

	// Only the owner may delete.
	if err := bob.DeleteBoard(ctx, board.ID); err == nil {
		t.Fatal("expected forbidden for non-owner delete")
	}
	if err := ann.DeleteBoard(ctx, board.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if boards, _ := ann.ListBoards(ctx); len(boards) != 0 {
		t.Fatalf("board survived delete: %v", boards)
	}
}

func TestTaskLifecycle(t *testing.T) {
	_, ts := startServer(t)
	ann := clientFor(t, ts, "ann")
	ctx := context.Background()

	board, err := ann.CreateBoard(ctx, domain.Board{Title: "Work", Type: domain.TemplateStandard})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}

	created, err := ann.CreateTask(ctx, domain.Task{
		BoardID:  board.ID,
		Title:    "write release notes",
		Priority: domain.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if created.ID == "" || created.Status != domain.StatusTodo {
		t.Fatalf("created = %+v", created)
	}

	// Patch only the status; everything else must survive.
	if err := ann.UpdateTask(ctx, created.ID, domain.TaskPatch{Status: strptr(domain.StatusDone)}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	tasks, err := ann.ListTasks(ctx, board.ID)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("tasks = %v (%v)", tasks, err)
	}
	if tasks[0].Status != domain.StatusDone || tasks[0].Priority != domain.PriorityHigh || tasks[0].Title != "write release notes" {
		t.Fatalf("patched task = %+v", tasks[0])
	}

	other, err := ann.CreateTask(ctx, domain.Task{BoardID: board.ID, Title: "keep me", Priority: domain.PriorityLow})
	if err != nil {
		t.Fatalf("create second task: %v", err)
	}

	// Bulk clear of the Done column leaves other columns alone.
	if err := ann.DeleteTasksByStatus(ctx, board.ID, domain.StatusDone); err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	tasks, _ = ann.ListTasks(ctx, board.ID)
	if len(tasks) != 1 || tasks[0].ID != other.ID {
		t.Fatalf("tasks after clear = %+v", tasks)
	}

	if err := ann.DeleteTask(ctx, other.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if tasks, _ = ann.ListTasks(ctx, board.ID); len(tasks) != 0 {
		t.Fatalf("tasks after delete = %+v", tasks)
	}
}

func TestTasksReturnSorted(t *testing.T) {
	_, ts := startServer(t)
	ann := clientFor(t, ts, "ann")
	ctx := context.Background()

	board, _ := ann.CreateBoard(ctx, domain.Board{Title: "Sorted", Type: domain.TemplateStandard})
	seed := []domain.Task{
		{BoardID: board.ID, Title: "B", Priority: domain.PriorityMedium, DueDate: strptr("2024-01-01")},
		{BoardID: board.ID, Title: "A", Priority: domain.PriorityHigh},
		{BoardID: board.ID, Title: "C", Priority: domain.PriorityHigh, DueDate: strptr("2024-01-02")},
	}
	for _, task := range seed {
		if _, err := ann.CreateTask(ctx, task); err != nil {
			t.Fatalf("create %s: %v", task.Title, err)
		}
	}

	tasks, err := ann.ListTasks(ctx, board.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := make([]string, len(tasks))
	for i, task := range tasks {
		got[i] = task.Title
	}
	if strings.Join(got, ",") != "C,A,B" {
		t.Fatalf("order = %v, want C,A,B", got)
	}
}

func TestSubtaskLifecycle(t *testing.T) {
	_, ts := startServer(t)
	ann := clientFor(t, ts, "ann")
	ctx := context.Background()

	board, _ := ann.CreateBoard(ctx, domain.Board{Title: "Checklist", Type: domain.TemplateMinimal})
	task, err := ann.CreateTask(ctx, domain.Task{BoardID: board.ID, Title: "parent"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	sub, err := ann.CreateSubtask(ctx, domain.Subtask{TaskID: task.ID, Title: "step one"})
	if err != nil {
		t.Fatalf("create subtask: %v", err)
	}
	if sub.ID == "" {
		t.Fatal("subtask id not assigned")
	}

	sub.IsCompleted = true
	if err := ann.UpdateSubtask(ctx, sub); err != nil {
		t.Fatalf("update subtask: %v", err)
	}

	tasks, _ := ann.ListTasks(ctx, board.ID)
	if len(tasks) != 1 || len(tasks[0].Subtasks) != 1 || !tasks[0].Subtasks[0].IsCompleted {
		t.Fatalf("tasks = %+v", tasks)
	}

	if err := ann.DeleteSubtask(ctx, sub.ID); err != nil {
		t.Fatalf("delete subtask: %v", err)
	}
	tasks, _ = ann.ListTasks(ctx, board.ID)
	if len(tasks[0].Subtasks) != 0 {
		t.Fatalf("subtasks survived delete: %+v", tasks[0].Subtasks)
	}

	if _, err := ann.CreateSubtask(ctx, domain.Subtask{TaskID: "missing", Title: "orphan"}); err == nil {
		t.Fatal("expected error for unknown parent task")
	}
}

func openChat(t *testing.T, ts *httptest.Server, boardID, user, email string) *chat.Channel {
	t.Helper()
	ch, err := chat.Open(chat.Config{
		URL:          strings.Replace(ts.URL, "http", "ws", 1) + "/api/chat",
		BoardID:      boardID,
		UserID:       user,
		UserEmail:    email,
		Tokens:       session.Static(devToken(t, user)),
		Logger:       quietLogger(),
		ReconnectMin: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("open chat: %v", err)
	}
	t.Cleanup(ch.Close)
	return ch
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestChatBroadcastEnforcesSenderIdentity(t *testing.T) {
	_, ts := startServer(t)
	annChat := openChat(t, ts, "b1", "ann", "ann@example.com")
	bobChat := openChat(t, ts, "b1", "bob", "bob@example.com")
	waitFor(t, "both open", func() bool {
		return annChat.State() == chat.StateOpen && bobChat.State() == chat.StateOpen
	})

	if err := bobChat.Send("hello board"); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, "broadcast", func() bool {
		return len(annChat.Messages()) == 1 && len(bobChat.Messages()) == 1
	})
	got := annChat.Messages()[0]
	if got.Content != "hello board" || got.SenderID != "bob" || got.SenderEmail != "bob@example.com" {
		t.Fatalf("message = %+v", got)
	}
	if got.BoardID != "b1" || got.Timestamp == 0 {
		t.Fatalf("server fields not attached: %+v", got)
	}
}

func TestChatHistoryReplayToLateJoiner(t *testing.T) {
	srv, ts := startServer(t)
	annChat := openChat(t, ts, "b2", "ann", "ann@example.com")
	waitFor(t, "ann open", func() bool { return annChat.State() == chat.StateOpen })

	if err := annChat.Send("first"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, "echo", func() bool { return len(annChat.Messages()) == 1 })
	waitFor(t, "persisted", func() bool { return len(srv.Store().History("b2")) == 1 })

	bobChat := openChat(t, ts, "b2", "bob", "bob@example.com")
	waitFor(t, "history", func() bool { return len(bobChat.Messages()) == 1 })
	got := bobChat.Messages()[0]
	if got.Type != domain.MessageHistory || got.Content != "first" || got.SenderEmail != "ann@example.com" {
		t.Fatalf("history = %+v", got)
	}
}

func TestChatRoomsAreIsolatedPerBoard(t *testing.T) {
	_, ts := startServer(t)
	annChat := openChat(t, ts, "board-a", "ann", "ann@example.com")
	bobChat := openChat(t, ts, "board-b", "bob", "bob@example.com")
	waitFor(t, "both open", func() bool {
		return annChat.State() == chat.StateOpen && bobChat.State() == chat.StateOpen
	})

	if err := annChat.Send("only for board-a"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, "ann echo", func() bool { return len(annChat.Messages()) == 1 })
	time.Sleep(50 * time.Millisecond)
	if len(bobChat.Messages()) != 0 {
		t.Fatalf("message leaked across rooms: %+v", bobChat.Messages())
	}
}

func TestChatRejectsInvalidToken(t *testing.T) {
	_, ts := startServer(t)
	ch, err := chat.Open(chat.Config{
		URL:          strings.Replace(ts.URL, "http", "ws", 1) + "/api/chat",
		BoardID:      "b1",
		UserID:       "mallory",
		UserEmail:    "m@example.com",
		Tokens:       session.Static("not-a-jwt"),
		Logger:       quietLogger(),
		ReconnectMin: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ch.Close()

	time.Sleep(100 * time.Millisecond)
	if ch.State() == chat.StateOpen {
		t.Fatal("channel opened with an invalid token")
	}
}
