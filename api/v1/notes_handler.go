package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/karloscodes/cartridge"

	"footprint/internal/store"
)

type updateNotesParams struct {
	DetailID    uint   `json:"detailId"`
	Fingerprint string `json:"fingerprint"`
	IP          string `json:"ip"`
	Notes       string `json:"notes"`
}

// UpdateNotesAction sets the notes of one visitor detail, addressed by id or
// by (fingerprint, ip).
func (h *Handlers) UpdateNotesAction(ctx *cartridge.Context) error {
	var params updateNotesParams
	if err := json.Unmarshal(ctx.Body(), &params); err != nil {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, errInvalidRequest, "INVALID_JSON")
	}

	edit := store.NotesEdit{
		DetailID:    params.DetailID,
		Fingerprint: strings.TrimSpace(params.Fingerprint),
		IP:          strings.TrimSpace(params.IP),
		Notes:       params.Notes,
	}
	if edit.DetailID == 0 && (edit.Fingerprint == "" || edit.IP == "") {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "detailId or fingerprint and ip are required", "MISSING_TARGET")
	}

	detail, err := h.deps.Repository.UpdateNotes(ctx.UserContext(), edit)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errorResponse(ctx.Ctx, http.StatusNotFound, "Visitor detail not found", "DETAIL_NOT_FOUND")
		}
		ctx.Logger.Error("Failed to update notes",
			slog.Uint64("detail_id", uint64(edit.DetailID)),
			slog.String("fingerprint", edit.Fingerprint),
			slog.Any("error", err))
		return internalError(ctx.Ctx, "Failed to update notes")
	}
	return ctx.JSON(detail)
}
