package registry

import "testing"

func TestCreateSessionExplicitName(t *testing.T) {
	r := New()
	s, err := r.CreateSession("workbench")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.Name != "workbench" {
		t.Fatalf("name = %q, want workbench", s.Name)
	}
}

func TestCreateSessionDuplicateNameFails(t *testing.T) {
	r := New()
	if _, err := r.CreateSession("workbench"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := r.CreateSession("workbench"); err != ErrAlreadyExists {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestCreateSessionGeneratesNameWhenOmitted(t *testing.T) {
	r := New()
	s, err := r.CreateSession("")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.Name == "" {
		t.Fatal("expected a generated name, got empty string")
	}
}

func TestCreatePaneRequiresExistingSession(t *testing.T) {
	r := New()
	if _, err := r.CreatePane("nonexistent", ""); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreatePaneChannelNames(t *testing.T) {
	r := New()
	s, _ := r.CreateSession("demo")
	p, err := r.CreatePane(s.ID, "main")
	if err != nil {
		t.Fatalf("CreatePane: %v", err)
	}
	wantIn := "session-" + s.ID + "/pane-" + p.ID + "/input"
	wantOut := "session-" + s.ID + "/pane-" + p.ID + "/output"
	if p.InputChannel() != wantIn {
		t.Fatalf("InputChannel() = %q, want %q", p.InputChannel(), wantIn)
	}
	if p.OutputChannel() != wantOut {
		t.Fatalf("OutputChannel() = %q, want %q", p.OutputChannel(), wantOut)
	}
}

func TestListSessionsAndPanesOrder(t *testing.T) {
	r := New()
	s1, _ := r.CreateSession("first")
	s2, _ := r.CreateSession("second")
	ids := r.ListSessions()
	if len(ids) != 2 || ids[0] != s1.ID || ids[1] != s2.ID {
		t.Fatalf("ListSessions() = %v, want [%s %s]", ids, s1.ID, s2.ID)
	}

	p1, _ := r.CreatePane(s1.ID, "a")
	p2, _ := r.CreatePane(s1.ID, "b")
	panes, err := r.ListPanes(s1.ID)
	if err != nil {
		t.Fatalf("ListPanes: %v", err)
	}
	if len(panes) != 2 || panes[0] != p1.ID || panes[1] != p2.ID {
		t.Fatalf("ListPanes() = %v, want [%s %s]", panes, p1.ID, p2.ID)
	}
}

func TestClosePaneInvokesCallbackAndRemoves(t *testing.T) {
	r := New()
	s, _ := r.CreateSession("demo")
	p, _ := r.CreatePane(s.ID, "main")

	var closed *Pane
	if err := r.ClosePane(s.ID, p.ID, func(pane *Pane) { closed = pane }); err != nil {
		t.Fatalf("ClosePane: %v", err)
	}
	if closed == nil || closed.ID != p.ID {
		t.Fatalf("onClose callback not invoked with the right pane")
	}
	if _, err := r.GetPane(s.ID, p.ID); err != ErrNotFound {
		t.Fatalf("GetPane after close = %v, want ErrNotFound", err)
	}
}

func TestCloseSessionClosesAllPanesThenSession(t *testing.T) {
	r := New()
	s, _ := r.CreateSession("demo")
	p1, _ := r.CreatePane(s.ID, "a")
	p2, _ := r.CreatePane(s.ID, "b")

	var closedIDs []string
	if err := r.CloseSession(s.ID, func(pane *Pane) { closedIDs = append(closedIDs, pane.ID) }); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if len(closedIDs) != 2 || closedIDs[0] != p1.ID || closedIDs[1] != p2.ID {
		t.Fatalf("closedIDs = %v, want [%s %s]", closedIDs, p1.ID, p2.ID)
	}
	if _, err := r.GetSession(s.ID); err != ErrNotFound {
		t.Fatalf("GetSession after close = %v, want ErrNotFound", err)
	}
}

func TestSessionNameReusableAfterClose(t *testing.T) {
	r := New()
	s, _ := r.CreateSession("demo")
	if err := r.CloseSession(s.ID, nil); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if _, err := r.CreateSession("demo"); err != nil {
		t.Fatalf("re-creating a closed session's name should succeed, got %v", err)
	}
}
