package web

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/aretw0/diary/pkg/core"
)

type authView struct {
	Checking bool
	Pending  bool
	Name     string
	Email    string
}

type noteForm struct {
	ID          string
	Title       string
	NoteDate    string
	Description string
}

type noteView struct {
	core.Note
	Expanded bool
	Editing  bool
	Form     noteForm
}

type dashboardView struct {
	Query string
	Notes []noteView
}

type createView struct {
	Title       string
	NoteDate    string
	Description string
	Created     bool
}

type deleteView struct {
	Note  core.Note
	Query string
}

func formOf(n core.Note) noteForm {
	return noteForm{ID: n.ID, Title: n.Title, NoteDate: n.NoteDate.String(), Description: n.Description}
}

func dashboardURL(query, anchor string) string {
	u := "/dashboard"
	if query != "" {
		u += "?" + url.Values{"q": {query}}.Encode()
	}
	if anchor != "" {
		u += "#note-" + anchor
	}
	return u
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request, rq *request) {
	s.render(w, r, rq, http.StatusOK, "home", view{Nav: "home"})
}

// renderAuth shows the login form, or the checking and confirmation views
// when the session is in one of those states.
func (s *Server) renderAuth(w http.ResponseWriter, r *http.Request, rq *request, form authView, errs ...string) {
	v := view{Title: "Login", Errors: errs}
	switch rq.browser.client.Session.Status() {
	case core.StateCheckingSession:
		form.Checking = true
		v.Refresh = 1
	case core.StateSignupPending:
		form.Pending = true
	}
	v.Body = form
	s.render(w, r, rq, http.StatusOK, "auth", v)
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request, rq *request) {
	if rq.browser.authenticated() {
		s.redirect(w, r, rq, "/dashboard")
		return
	}
	s.renderAuth(w, r, rq, authView{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, rq *request) {
	if rq.browser.authenticated() {
		s.redirect(w, r, rq, "/dashboard")
		return
	}
	form := authView{
		Name:  strings.TrimSpace(r.PostFormValue("name")),
		Email: strings.TrimSpace(r.PostFormValue("email")),
	}
	if err := rq.browser.client.Session.Login(r.Context(), form.Email, r.PostFormValue("password")); err != nil {
		s.renderAuth(w, r, rq, form, core.UserMessage(err))
		return
	}
	rq.browser.resetView()
	s.redirect(w, r, rq, "/dashboard")
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request, rq *request) {
	if rq.browser.authenticated() {
		s.redirect(w, r, rq, "/dashboard")
		return
	}
	form := authView{
		Name:  strings.TrimSpace(r.PostFormValue("name")),
		Email: strings.TrimSpace(r.PostFormValue("email")),
	}
	outcome, err := rq.browser.client.Session.Signup(r.Context(), form.Name, form.Email, r.PostFormValue("password"))
	if err != nil {
		s.renderAuth(w, r, rq, form, core.UserMessage(err))
		return
	}
	rq.browser.resetView()
	if outcome == core.SignupWithSession {
		s.redirect(w, r, rq, "/dashboard")
		return
	}
	s.redirect(w, r, rq, "/login")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, rq *request) {
	if err := rq.browser.client.Session.Logout(r.Context()); err != nil {
		s.flash(rq, flashError, core.UserMessage(err))
	}
	rq.browser.resetView()
	s.redirect(w, r, rq, "/")
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request, rq *request) {
	if _, err := rq.browser.client.Session.Restart(r.Context()); err != nil {
		s.flash(rq, flashError, core.UserMessage(err))
	}
	s.redirect(w, r, rq, "/login")
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, rq *request) {
	b := rq.browser
	if !b.authenticated() {
		s.renderAuth(w, r, rq, authView{})
		return
	}

	query := r.URL.Query().Get("q")
	var errs []string
	notes, err := b.client.Notes.ListNotes(r.Context(), b.client.Session.UserID())
	if errors.Is(err, core.ErrNotAuthenticated) {
		// The session ended while the token was being refreshed.
		b.resetView()
		s.renderAuth(w, r, rq, authView{}, core.UserMessage(err))
		return
	}
	if err != nil {
		errs = append(errs, core.UserMessage(err))
		notes = nil
	}

	// A note deleted elsewhere can no longer be edited.
	if err == nil && b.editing != "" && !containsNote(notes, b.editing) {
		b.editing = ""
		b.draft = nil
	}

	list := b.client.Notes.Search(notes, query)
	views := make([]noteView, 0, len(list))
	for _, n := range list {
		nv := noteView{Note: n, Expanded: b.expanded == n.ID, Editing: b.editing == n.ID}
		if nv.Editing {
			nv.Form = formOf(n)
			if b.draft != nil && b.draft.ID == n.ID {
				nv.Form = *b.draft
			}
		}
		views = append(views, nv)
	}

	s.render(w, r, rq, http.StatusOK, "dashboard", view{
		Title:  "Dashboard",
		Nav:    "dashboard",
		Errors: errs,
		Body:   dashboardView{Query: query, Notes: views},
	})
}

func containsNote(notes []core.Note, id string) bool {
	for _, n := range notes {
		if n.ID == id {
			return true
		}
	}
	return false
}

func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request, rq *request) {
	if !rq.browser.authenticated() {
		s.renderAuth(w, r, rq, authView{})
		return
	}
	created := len(flashes(rq.cookie, flashCreated)) > 0
	s.render(w, r, rq, http.StatusOK, "create", view{
		Title: "Create",
		Nav:   "create",
		Body:  createView{Created: created},
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, rq *request) {
	b := rq.browser
	form := createView{
		Title:       r.PostFormValue("title"),
		NoteDate:    r.PostFormValue("note_date"),
		Description: r.PostFormValue("description"),
	}
	in, err := core.ParseNoteInput(form.Title, form.NoteDate, form.Description)
	if err == nil {
		_, err = b.client.Notes.CreateNote(r.Context(), b.client.Session.UserID(), in)
	}
	if errors.Is(err, core.ErrNotAuthenticated) {
		s.renderAuth(w, r, rq, authView{}, core.UserMessage(err))
		return
	}
	if err != nil {
		s.render(w, r, rq, http.StatusOK, "create", view{
			Title:  "Create",
			Nav:    "create",
			Errors: []string{core.UserMessage(err)},
			Body:   form,
		})
		return
	}
	s.flash(rq, flashCreated, "Note created successfully!")
	s.redirect(w, r, rq, "/create")
}

// noteAction runs fn for an authenticated browser on the note named in the
// path and returns to the dashboard, keeping the search query.
func (s *Server) noteAction(w http.ResponseWriter, r *http.Request, rq *request, fn func(b *browser, id string)) {
	if !rq.browser.authenticated() {
		s.redirect(w, r, rq, "/login")
		return
	}
	id := mux.Vars(r)["id"]
	fn(rq.browser, id)
	s.redirect(w, r, rq, dashboardURL(r.PostFormValue("q"), id))
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request, rq *request) {
	s.noteAction(w, r, rq, func(b *browser, id string) {
		if b.expanded == id {
			b.expanded = ""
		} else {
			b.expanded = id
		}
	})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request, rq *request) {
	s.noteAction(w, r, rq, func(b *browser, id string) {
		b.editing = id
		b.draft = nil
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, rq *request) {
	s.noteAction(w, r, rq, func(b *browser, id string) {
		b.editing = ""
		b.draft = nil
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request, rq *request) {
	s.noteAction(w, r, rq, func(b *browser, id string) {
		form := noteForm{
			ID:          id,
			Title:       r.PostFormValue("title"),
			NoteDate:    r.PostFormValue("note_date"),
			Description: r.PostFormValue("description"),
		}
		in, err := core.ParseNoteInput(form.Title, form.NoteDate, form.Description)
		if err == nil {
			_, err = b.client.Notes.UpdateNote(r.Context(), id, in)
		}
		if err != nil {
			s.flash(rq, flashError, core.UserMessage(err))
			b.editing = id
			b.draft = &form
			return
		}
		b.editing = ""
		b.draft = nil
	})
}

func (s *Server) handleDeleteConfirm(w http.ResponseWriter, r *http.Request, rq *request) {
	b := rq.browser
	if !b.authenticated() {
		s.renderAuth(w, r, rq, authView{})
		return
	}
	id := mux.Vars(r)["id"]
	note := core.Note{ID: id}
	var errs []string
	notes, err := b.client.Notes.ListNotes(r.Context(), b.client.Session.UserID())
	if err != nil {
		errs = append(errs, core.UserMessage(err))
	}
	for _, n := range notes {
		if n.ID == id {
			note = n
			break
		}
	}
	s.render(w, r, rq, http.StatusOK, "delete", view{
		Title:  "Delete",
		Nav:    "dashboard",
		Errors: errs,
		Body:   deleteView{Note: note, Query: r.URL.Query().Get("q")},
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, rq *request) {
	s.noteAction(w, r, rq, func(b *browser, id string) {
		if err := b.client.Notes.DeleteNote(r.Context(), id); err != nil {
			s.flash(rq, flashError, core.UserMessage(err))
			return
		}
		if b.expanded == id {
			b.expanded = ""
		}
		if b.editing == id {
			b.editing = ""
			b.draft = nil
		}
	})
}
