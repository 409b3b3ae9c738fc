package http

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/services"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string    `json:"token"`
	User  core.User `json:"user"`
}

type profileRequest struct {
	Name          string           `json:"name"`
	MonthlySalary *decimal.Decimal `json:"monthlySalary"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req services.SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.auth.Signup(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, user, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.Profile(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, user)
}

// handleUpdateProfile changes the name and, when present, the salary.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var salary decimal.Decimal
	if req.MonthlySalary != nil {
		salary = *req.MonthlySalary
	} else {
		current, err := s.auth.Profile(r.Context(), currentUser(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		salary = current.MonthlySalary
	}

	user, err := s.auth.UpdateProfile(r.Context(), currentUser(r), req.Name, salary)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, user)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err := s.auth.ChangePassword(r.Context(), currentUser(r), req.CurrentPassword, req.NewPassword)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		// The session is valid; only the confirmation failed.
		BadRequestError("current password is incorrect").Write(w)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"message": "password updated"})
}
