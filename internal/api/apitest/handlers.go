package apitest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/WilhelmDev/faduweb/models"
)

const (
	defaultLimit  = 10
	studentPageSz = 10
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	s.mu.Lock()
	var found *account
	login := strings.ToLower(req.UserOrEmail)
	for _, acc := range s.accounts {
		if acc.user.Email == login || strings.ToLower(acc.user.Username) == login {
			found = acc
			break
		}
	}
	s.mu.Unlock()

	if found == nil || found.password != req.Password {
		writeError(w, http.StatusUnauthorized, "Credenciales inválidas")
		return
	}
	writeJSON(w, http.StatusOK, models.LoginResponse{Token: s.Token(found.user)})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	s.mu.Lock()
	for _, acc := range s.accounts {
		if acc.user.Email == strings.ToLower(req.Email) {
			s.mu.Unlock()
			writeError(w, http.StatusBadRequest, "El email ya se encuentra registrado")
			return
		}
	}
	s.mu.Unlock()

	u := s.AddUser(models.User{
		Email:     req.Email,
		Username:  req.Username,
		Name:      req.Name,
		Lastname:  req.Lastname,
		CreatedAt: time.Now(),
	}, req.Password)
	writeJSON(w, http.StatusCreated, models.LoginResponse{Token: s.Token(u)})
}

func (s *Server) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Usuario inexistente")
		return
	}
	writeJSON(w, http.StatusOK, models.LoginResponse{Token: s.Token(u)})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Неверный ID пользователя")
		return
	}
	if callerID, _ := r.Context().Value(userIDKey).(int64); callerID != id {
		writeError(w, http.StatusForbidden, "Нельзя изменять чужой профиль")
		return
	}
	if err = r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Неверный формат формы")
		return
	}
	careerID, err := strconv.ParseInt(r.FormValue("career_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "career_id must be a number")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Usuario inexistente")
		return
	}
	acc.user.CareerID = careerID
	acc.user.Username = r.FormValue("username")
	if img := r.FormValue("image"); img != "" {
		acc.user.Image = &models.Image{ID: id, URL: img}
		acc.user.ImageID = id
	}
	acc.user.UpdatedAt = time.Now()
	u := acc.user
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleFaculties(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	list := append([]models.Faculty{}, s.faculties...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCareers(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	list := append([]models.Career{}, s.careers...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSubjects(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	list := append([]models.Subject{}, s.subjects...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSubjectsByCareer(w http.ResponseWriter, r *http.Request) {
	careerID, err := strconv.ParseInt(chi.URLParam(r, "careerID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Неверный ID карьеры")
		return
	}
	s.mu.Lock()
	list := []models.Subject{}
	for _, subj := range s.subjects {
		if subj.SubjectCategory != nil && subj.SubjectCategory.CareerID == careerID {
			list = append(list, subj)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleOpinions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), defaultLimit)
	offset := queryInt(q.Get("offset"), 0)
	search := strings.ToLower(q.Get("search"))
	careerID := queryInt64(q.Get("career_id"))
	subjectID := queryInt64(q.Get("subject_id"))
	facultyID := queryInt64(q.Get("faculty_id"))

	s.mu.Lock()
	matched := []models.Opinion{}
	for _, so := range s.opinions {
		o := so.opinion
		switch {
		case search != "" &&
			!strings.Contains(strings.ToLower(o.Title), search) &&
			!strings.Contains(strings.ToLower(o.Description), search):
			continue
		case careerID != nil && so.careerID != *careerID:
			continue
		case subjectID != nil && o.SubjectID != *subjectID:
			continue
		case facultyID != nil && so.facultyID != *facultyID:
			continue
		}
		matched = append(matched, o)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, models.OpinionPage{
		Data: paginate(matched, offset, limit),
		Meta: models.PageMeta{TotalElements: len(matched)},
	})
}

func (s *Server) handleStudentOpinions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset := queryInt(q.Get("offset"), 0)
	studentID := queryInt64(q.Get("student_id"))

	s.mu.Lock()
	list := []models.Opinion{}
	for _, so := range s.opinions {
		if studentID == nil || so.opinion.StudentID == *studentID {
			list = append(list, so.opinion)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, paginate(list, offset, studentPageSz))
}

func (s *Server) handleCreateOpinion(w http.ResponseWriter, r *http.Request) {
	var req models.OpinionPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	if req.Title == "" || req.SubjectID == 0 {
		writeError(w, http.StatusBadRequest, "title should not be empty")
		return
	}
	u, ok := s.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Usuario inexistente")
		return
	}

	tags := make([]models.OpinionTag, 0, len(req.Tags))
	for _, tagID := range req.Tags {
		tags = append(tags, models.OpinionTag{TagID: tagID, Tag: models.Tag{ID: tagID}})
	}
	o := s.AddOpinion(models.Opinion{
		Title:       req.Title,
		Description: req.Description,
		StudentID:   u.ID,
		SubjectID:   req.SubjectID,
		Professor:   req.Professor,
		OpinionTags: tags,
	}, derefOr(u.FacultyID, 0), u.CareerID)
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) currentUser(r *http.Request) (models.User, bool) {
	id, _ := r.Context().Value(userIDKey).(int64)
	return s.User(id)
}

func paginate(list []models.Opinion, offset, limit int) []models.Opinion {
	if offset >= len(list) {
		return []models.Opinion{}
	}
	end := min(offset+limit, len(list))
	return list[offset:end]
}

func queryInt(raw string, def int) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func queryInt64(raw string) *int64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func derefOr(p *int64, def int64) int64 {
	if p == nil {
		return def
	}
	return *p
}
