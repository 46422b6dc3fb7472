package models

import "time"

// Faculty - факультет, ограничивающий видимые карьеры и предметы.
type Faculty struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Image       *Image    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Career - образовательная программа внутри факультета.
type Career struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ImageID   int64     `json:"image_id,omitempty"`
	Image     *Image    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubjectCategory группирует предметы внутри карьеры.
type SubjectCategory struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	CareerID int64  `json:"career_id"`
}

// Subject - предмет с перечнем кафедр (преподавателей).
type Subject struct {
	ID                int64            `json:"id"`
	Name              string           `json:"name"`
	SubjectCategoryID int64            `json:"subject_category_id"`
	SubjectCategory   *SubjectCategory `json:"subjectCategory,omitempty"`
	Chairs            []string         `json:"chairs"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}
