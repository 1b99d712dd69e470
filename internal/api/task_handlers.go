package api

import (
	"net/http"
	"strconv"

	"github.com/t77yq/autocontrol/internal/model"
	"github.com/t77yq/autocontrol/internal/scheduler"
)

type taskView struct {
	model.ScheduledTask
	Schedule string `json:"schedule"`
}

func toTaskView(t model.ScheduledTask) taskView {
	return taskView{ScheduledTask: t, Schedule: t.Describe()}
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request, session model.Session) {
	tasks := s.deps.Scheduler.Tasks()
	out := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskView(t))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request, session model.Session) {
	var in scheduler.TaskInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	task, err := s.deps.Scheduler.CreateTask(r.Context(), in)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.deps.Activity.Add(session.Username, "create task "+task.Name, true)
	s.writeJSON(w, http.StatusCreated, toTaskView(task))
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request, session model.Session) {
	task, err := s.deps.Scheduler.ToggleTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTaskView(task))
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request, session model.Session) {
	entry, err := s.deps.Scheduler.RunTaskNow(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.deps.Activity.Add(session.Username, "run task "+entry.TaskName, entry.Success)
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request, session model.Session) {
	task, err := s.deps.Scheduler.DeleteTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.deps.Activity.Add(session.Username, "delete task "+task.Name, true)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request, session model.Session) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, errInvalidLimit)
			return
		}
		limit = n
	}
	s.writeJSON(w, http.StatusOK, s.deps.Scheduler.Log(limit))
}

func (s *Server) handleClearLog(w http.ResponseWriter, r *http.Request, session model.Session) {
	if err := s.deps.Scheduler.ClearLog(r.Context()); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.deps.Activity.Add(session.Username, "clear execution log", true)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request, session model.Session) {
	s.writeJSON(w, http.StatusOK, s.deps.Activity.Entries())
}
