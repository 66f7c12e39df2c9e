package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"liquidneuron/consent"
	"liquidneuron/core"
	"liquidneuron/core/state"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.st.GetInfo())
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	type statusResponse struct {
		state.Status
		RewardIndex string `json:"reward_index,omitempty"`
	}
	resp := statusResponse{Status: s.st.GetStatus()}
	if s.rewards != nil {
		resp.RewardIndex = s.rewards.Index().Value().String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetWithdrawalRequests(w http.ResponseWriter, r *http.Request) {
	var account *core.Account
	if owner := r.URL.Query().Get("account"); owner != "" {
		a := core.NewAccount(owner)
		account = &a
	}
	reqs := s.st.WithdrawalsByAccount(account)

	type entry struct {
		Status  string      `json:"status"`
		Request interface{} `json:"request"`
	}
	out := make([]entry, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, entry{Status: string(s.st.WithdrawalStatus(req.WithdrawalId)), Request: req})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTransferStatuses(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query()["id"]
	ids := make([]core.TransferId, 0, len(raw))
	for _, v := range raw {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid transfer id: "+v)
			return
		}
		ids = append(ids, core.TransferId(n))
	}
	writeJSON(w, http.StatusOK, s.st.TransferStatuses(ids))
}

// maxEventPageLength caps a single GetEvents response page.
const maxEventPageLength = 2000

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	start, err := parseUintQuery(r, "start", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start parameter")
		return
	}
	length, err := parseUintQuery(r, "length", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid length parameter")
		return
	}
	if length > maxEventPageLength {
		length = maxEventPageLength
	}

	events, total, err := s.log.Page(start, length)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to page events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
	})
}

func parseUintQuery(r *http.Request, key string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (s *Server) handleGetAirdropAllocation(w http.ResponseWriter, r *http.Request) {
	principal := r.URL.Query().Get("principal")
	if principal == "" {
		writeError(w, http.StatusBadRequest, "missing principal query parameter")
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount_e8s": uint64(s.st.AirdropBalance(principal))})
}

type consentRequest struct {
	Method string `json:"method"`
	ArgB64 string `json:"arg_base64,omitempty"`
}

func (s *Server) handleConsentMessage(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	arg, err := base64.StdEncoding.DecodeString(req.ArgB64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid arg_base64")
		return
	}
	text, err := consent.Render(req.Method, arg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"consent_message": text})
}
