package server

import (
	"net/http"

	"github.com/inaciog/reminders-app/internal/auth"
	"github.com/inaciog/reminders-app/internal/model"
	"github.com/inaciog/reminders-app/internal/repository"
)

// ─── Folders ────────────────────────────────────────────────────────────────

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.repo.ListFolders())
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	folder, err := s.repo.CreateFolder(repository.FolderInput{Name: req.Name, Color: req.Color, Icon: req.Icon})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

func (s *Server) handleUpdateFolder(w http.ResponseWriter, r *http.Request) {
	var body fields
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	patch, err := body.folderPatch()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	folder, err := s.repo.UpdateFolder(r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	moved, err := s.repo.DeleteFolder(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "moved": moved})
}

// ─── Reminders ──────────────────────────────────────────────────────────────

// reminderView adds the computed overdue flag to list responses.
type reminderView struct {
	model.Reminder
	Overdue bool `json:"overdue,omitempty"`
}

func (s *Server) views(items []model.Reminder) []reminderView {
	start, _ := model.DayBounds(s.now())
	out := make([]reminderView, len(items))
	for i, rem := range items {
		out[i] = reminderView{Reminder: rem, Overdue: !rem.Completed && rem.Overdue(start)}
	}
	return out
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.views(s.repo.ListReminders(filter)))
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.views(s.repo.Today()))
}

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rem, err := s.repo.CreateReminder(req.input(""))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rem)
}

func (s *Server) handleGetReminder(w http.ResponseWriter, r *http.Request) {
	rem, err := s.repo.GetReminder(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) handleUpdateReminder(w http.ResponseWriter, r *http.Request) {
	var body fields
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	patch, err := body.reminderPatch()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rem, err := s.repo.UpdateReminder(r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeleteReminder(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ─── Subtasks ───────────────────────────────────────────────────────────────

func (s *Server) handleAddSubtask(w http.ResponseWriter, r *http.Request) {
	var req subtaskRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	title := ""
	if req.Title != nil {
		title = *req.Title
	}
	rem, _, err := s.repo.AddSubtask(r.PathValue("id"), title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rem)
}

func (s *Server) handleUpdateSubtask(w http.ResponseWriter, r *http.Request) {
	var req subtaskRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rem, err := s.repo.UpdateSubtask(r.PathValue("id"), r.PathValue("subId"), repository.SubtaskPatch{
		Title:     req.Title,
		Completed: req.Completed,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) handleDeleteSubtask(w http.ResponseWriter, r *http.Request) {
	rem, err := s.repo.DeleteSubtask(r.PathValue("id"), r.PathValue("subId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

// ─── Bulk ───────────────────────────────────────────────────────────────────

func (s *Server) bulk(w http.ResponseWriter, r *http.Request, req bulkRequest) {
	if len(req.IDs) == 0 {
		s.writeError(w, r, badRequest("ids must be a non-empty array"))
		return
	}
	updated, err := s.repo.Bulk(repository.BulkRequest{
		Action:   repository.BulkAction(req.Action),
		IDs:      req.IDs,
		FolderID: req.FolderID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": updated})
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.bulk(w, r, req)
}

// ─── Tags and stats ─────────────────────────────────────────────────────────

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.repo.Tags())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.repo.Stats())
}

// ─── Backups ────────────────────────────────────────────────────────────────

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	res := s.backups.Run(r.Context(), "manual")
	if res.Err != nil {
		s.writeError(w, r, res.Err)
		return
	}
	body := map[string]any{
		"success":      true,
		"file":         res.File,
		"bytes":        res.Bytes,
		"pruned":       res.Pruned,
		"remoteStatus": res.RemoteStatus,
	}
	if res.SyncErr != nil {
		body["remoteError"] = res.SyncErr.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	files, err := s.backups.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.BackupFile == "" {
		s.writeError(w, r, badRequest("backupFile is required"))
		return
	}
	snap, err := s.store.Restore(r.Context(), req.BackupFile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("restored backup", "file", req.BackupFile, "folders", len(snap.Folders), "reminders", len(snap.Reminders))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"folders":   len(snap.Folders),
		"reminders": len(snap.Reminders),
	})
}

// ─── External ───────────────────────────────────────────────────────────────

func (s *Server) handleExternalCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		reminderRequest
		Secret string `json:"secret"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.assistantAllowed(r, req.Secret) {
		s.denyAssistant(w, r)
		return
	}
	rem, err := s.repo.CreateReminder(req.input(model.SourceAssistant))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rem)
}

func (s *Server) handleExternalList(w http.ResponseWriter, r *http.Request) {
	if !s.assistantAllowed(r, "") {
		s.denyAssistant(w, r)
		return
	}
	s.handleListReminders(w, r)
}

func (s *Server) handleExternalStats(w http.ResponseWriter, r *http.Request) {
	if !s.assistantAllowed(r, "") {
		s.denyAssistant(w, r)
		return
	}
	s.handleStats(w, r)
}

func (s *Server) handleExternalBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.assistantAllowed(r, req.Secret) {
		s.denyAssistant(w, r)
		return
	}
	s.bulk(w, r, req)
}

func (s *Server) denyAssistant(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("assistant secret rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid secret"})
}

// assistantAllowed accepts the shared secret from the body, the query
// string, or the X-Assistant-Secret header.
func (s *Server) assistantAllowed(r *http.Request, bodySecret string) bool {
	got := bodySecret
	if got == "" {
		got = r.URL.Query().Get("secret")
	}
	if got == "" {
		got = r.Header.Get("X-Assistant-Secret")
	}
	return auth.CheckSecret(s.secret, got)
}
