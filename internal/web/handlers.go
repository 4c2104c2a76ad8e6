package web

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/hpungsan/pied/internal/box"
	"github.com/hpungsan/pied/internal/config"
	"github.com/hpungsan/pied/internal/errors"
	"github.com/hpungsan/pied/internal/ops"
	"github.com/hpungsan/pied/internal/remote"
)

// maxBodyBytes bounds PUT bodies. Content is limited in characters, which can
// be up to four bytes each, plus JSON escaping.
const maxBodyBytes = 1 << 20

// Handlers contains HTTP route handlers for the relay's JSON API.
type Handlers struct {
	db      *sql.DB
	cfg     *config.Config
	tree    *remote.Tree
	version string
}

// HandleIndex handles GET / and describes the relay.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{
		"name":      "pied",
		"version":   h.version,
		"box_count": h.cfg.BoxCount,
		"websocket": "/ws",
	})
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			renderError(w, errors.NewInternal(err))
			return
		}
	}
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleGetBox handles GET /boxes/{id}, returning the box view.
func (h *Handlers) HandleGetBox(w http.ResponseWriter, r *http.Request) {
	id, err := box.Parse(r.PathValue("id"), h.cfg.BoxCount)
	if err != nil {
		renderError(w, err)
		return
	}

	out, err := ops.Fetch(r.Context(), h.tree, h.db, h.cfg, ops.FetchInput{Box: id})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// saveRequest is the PUT /boxes/{id} body.
type saveRequest struct {
	Content *string `json:"content"`
	Editor  *string `json:"editor"`
	Format  string  `json:"format"`
}

// HandlePutBox handles PUT /boxes/{id}. When a remote write fails the error
// body carries the save output, whose status shows what landed.
func (h *Handlers) HandlePutBox(w http.ResponseWriter, r *http.Request) {
	id, err := box.Parse(r.PathValue("id"), h.cfg.BoxCount)
	if err != nil {
		renderError(w, err)
		return
	}

	var req saveRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		renderError(w, errors.NewInvalidRequest("invalid JSON body: "+err.Error()))
		return
	}
	if req.Content == nil {
		renderError(w, errors.NewInvalidRequest("content is required"))
		return
	}

	out, err := ops.Save(r.Context(), h.tree, h.db, h.cfg, ops.SaveInput{
		Box:     id,
		Content: *req.Content,
		Format:  req.Format,
		Editor:  req.Editor,
	})
	if err != nil {
		if out != nil {
			renderPartial(w, err, out)
			return
		}
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}
