package models

import "time"

// Opinion - отзыв студента о предмете.
type Opinion struct {
	ID           int64        `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	StudentID    int64        `json:"student_id"`
	SubjectID    int64        `json:"subject_id"`
	Professor    string       `json:"professor"`
	AnswersCount int          `json:"answersCount"`
	OpinionTags  []OpinionTag `json:"opinionTags"`
	Subject      *Subject     `json:"subject,omitempty"`
	Student      *User        `json:"student,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// OpinionTag связывает отзыв с тегом.
type OpinionTag struct {
	ID        int64 `json:"id"`
	OpinionID int64 `json:"opinion_id"`
	TagID     int64 `json:"tag_id"`
	Tag       Tag   `json:"tag"`
}

// Tag - метка отзыва.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// OpinionPayload - тело запроса на создание отзыва.
type OpinionPayload struct {
	Title             string  `json:"title" validate:"required"`
	Description       string  `json:"description" validate:"required"`
	SubjectID         int64   `json:"subject_id" validate:"required,gt=0"`
	CurrentSchoolYear string  `json:"currentSchoolYear" validate:"required"`
	Professor         string  `json:"professor"`
	Anonymous         int     `json:"anonymous" validate:"oneof=0 1"`
	Tags              []int64 `json:"tags"`
}

// OpinionQuery - параметры постраничного поиска отзывов.
// Nil-идентификаторы не попадают в запрос.
type OpinionQuery struct {
	Limit     int
	Offset    int
	Search    string
	CareerID  *int64
	SubjectID *int64
	FacultyID *int64
}

// OpinionPage - ответ GET /opinion/all/web.
type OpinionPage struct {
	Data []Opinion `json:"data"`
	Meta PageMeta  `json:"meta"`
}

// PageMeta - метаданные страницы результатов.
type PageMeta struct {
	TotalElements int `json:"total_elements"`
}
