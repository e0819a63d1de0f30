package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/pixil98/ubichill/internal/auth"
	"github.com/pixil98/ubichill/internal/instance"
	"github.com/pixil98/ubichill/internal/journal"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Connections   int    `json:"connections"`
}

// instanceView is an instance as clients see it: the record plus where to
// connect.
type instanceView struct {
	instance.Instance
	WorldName  string              `json:"worldName,omitempty"`
	Connection instance.Connection `json:"connection"`
}

type createRequest struct {
	WorldID  string `json:"worldId"`
	Settings struct {
		MaxUsers int `json:"maxUsers"`
	} `json:"settings"`
	Access instance.Access `json:"access"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(s.now().Sub(s.startTime).Seconds()),
	}
	if s.connections != nil {
		resp.Connections = s.connections.Count()
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleWorlds(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"worlds": s.instances.Templates().Templates(),
	})
}

func (s *Server) handleGetWorld(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := s.instances.Templates().Template(mux.Vars(r)["id"])
	if !ok {
		jsonError(w, http.StatusNotFound, instance.ErrTemplateNotFound.Error())
		return
	}
	jsonResponse(w, http.StatusOK, tmpl)
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeFull, _ := strconv.ParseBool(q.Get("includeFull"))

	list := s.instances.List(instance.Filter{
		Tag:         q.Get("tag"),
		IncludeFull: includeFull,
	})

	views := make([]instanceView, 0, len(list))
	for _, inst := range list {
		v, err := s.view(inst)
		if err != nil {
			slog.ErrorContext(r.Context(), "rendering instance", "instanceId", inst.ID, "error", err)
			jsonError(w, http.StatusInternalServerError, "internal error")
			return
		}
		views = append(views, v)
	}

	jsonResponse(w, http.StatusOK, map[string]any{"instances": views})
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instances.Get(mux.Vars(r)["id"])
	if !ok {
		jsonError(w, http.StatusNotFound, instance.ErrNotFound.Error())
		return
	}

	v, err := s.view(inst)
	if err != nil {
		slog.ErrorContext(r.Context(), "rendering instance", "instanceId", inst.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	jsonResponse(w, http.StatusOK, v)
}

func (s *Server) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	req.WorldID = strings.TrimSpace(req.WorldID)
	if req.WorldID == "" {
		jsonError(w, http.StatusBadRequest, "worldId is required")
		return
	}
	if req.Settings.MaxUsers < 0 {
		jsonError(w, http.StatusBadRequest, "maxUsers must not be negative")
		return
	}

	inst, err := s.instances.Create(r.Context(), req.WorldID, id.UserID, instance.Settings{
		MaxUsers: req.Settings.MaxUsers,
		Access:   req.Access,
	})
	if errors.Is(err, instance.ErrTemplateNotFound) {
		jsonError(w, http.StatusNotFound, instance.ErrTemplateNotFound.Error())
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "creating instance", "worldId", req.WorldID, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if s.journal != nil {
		s.journal.Record(journal.Fact{
			Kind:       journal.KindInstanceCreated,
			InstanceID: inst.ID,
			UserID:     id.UserID,
			Detail:     map[string]string{"worldId": inst.TemplateID},
		})
	}

	v, err := s.view(inst)
	if err != nil {
		slog.ErrorContext(r.Context(), "rendering instance", "instanceId", inst.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	jsonResponse(w, http.StatusCreated, v)
}

func (s *Server) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	err := s.instances.Close(mux.Vars(r)["id"], id.UserID)
	switch {
	case errors.Is(err, instance.ErrNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, instance.ErrNotLeader):
		jsonError(w, http.StatusForbidden, err.Error())
	case err != nil:
		slog.ErrorContext(r.Context(), "closing instance", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}

	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxJournalLimit)
	}

	facts, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "reading journal", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if facts == nil {
		facts = []journal.Fact{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{"facts": facts})
}

// authenticate writes a 401 and returns false when the request carries no
// valid credentials.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	if s.verifier == nil {
		jsonError(w, http.StatusUnauthorized, "authentication unavailable")
		return nil, false
	}

	id, err := auth.VerifyHeader(r.Context(), s.verifier, r.Header, s.cookieName)
	if err != nil {
		if !errors.Is(err, auth.ErrNoCredentials) {
			slog.DebugContext(r.Context(), "rejected credentials", "error", err)
		}
		jsonError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return id, true
}

func (s *Server) view(inst instance.Instance) (instanceView, error) {
	v := instanceView{Instance: inst}

	tmpl, ok := s.instances.Templates().Template(inst.TemplateID)
	if ok {
		v.WorldName = tmpl.DisplayName
	}

	conn, err := s.renderer.Render(inst, tmpl)
	if err != nil {
		return instanceView{}, err
	}
	v.Connection = conn
	return v, nil
}
