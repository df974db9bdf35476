package api

import (
	"time"

	"github.com/uniteams/uniteams/core"
)

// Tutor request statuses
const (
	TutorRequestPending  = "pending"
	TutorRequestApproved = "approved"
	TutorRequestRejected = "rejected"
)

type (
	// StudyGroup is a course study group owned by the member who created it.
	StudyGroup struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Course      string    `json:"course"`
		Description string    `json:"description,omitempty"`
		OwnerID     string    `json:"owner_id"`
		MemberIDs   []string  `json:"member_ids"`
		Capacity    int       `json:"capacity"`
		CreatedAt   time.Time `json:"created_at"`
	}

	NewStudyGroup struct {
		Name        string `json:"name" validate:"required,max=120"`
		Course      string `json:"course" validate:"required,max=60"`
		Description string `json:"description" validate:"max=1000"`
		Capacity    int    `json:"capacity" validate:"required,min=2,max=50"`
	}

	// TutorRequest is a member's application to become a tutor, reviewed by
	// a coordinator.
	TutorRequest struct {
		ID         string    `json:"id"`
		UserID     string    `json:"user_id"`
		Subjects   []string  `json:"subjects"`
		Motivation string    `json:"motivation,omitempty"`
		Status     string    `json:"status"`
		ReviewedBy string    `json:"reviewed_by,omitempty"`
		CreatedAt  time.Time `json:"created_at"`
	}

	NewTutorRequest struct {
		Subjects   []string `json:"subjects" validate:"required,min=1,dive,required,max=60"`
		Motivation string   `json:"motivation" validate:"max=2000"`
	}

	ReviewDecision struct {
		Approve bool   `json:"approve"`
		Note    string `json:"note" validate:"max=1000"`
	}

	// Feedback rates a tutoring session.
	Feedback struct {
		ID        string    `json:"id"`
		TutorID   string    `json:"tutor_id"`
		AuthorID  string    `json:"author_id"`
		Rating    int       `json:"rating"`
		Comment   string    `json:"comment,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}

	NewFeedback struct {
		TutorID string `json:"tutor_id" validate:"required"`
		Rating  int    `json:"rating" validate:"required,min=1,max=5"`
		Comment string `json:"comment" validate:"max=2000"`
	}
)

func (ng *NewStudyGroup) Validate() error {
	ng.Name = core.CleanString(ng.Name)
	ng.Course = core.CleanString(ng.Course)
	ng.Description = core.CleanString(ng.Description)
	if err := core.Validate.Struct(ng); err != nil {
		return err
	}
	return nil
}

func (nr *NewTutorRequest) Validate() error {
	for i, s := range nr.Subjects {
		nr.Subjects[i] = core.CleanString(s)
	}
	nr.Motivation = core.CleanString(nr.Motivation)
	if err := core.Validate.Struct(nr); err != nil {
		return err
	}
	return nil
}

func (nf *NewFeedback) Validate() error {
	nf.Comment = core.CleanString(nf.Comment)
	if err := core.Validate.Struct(nf); err != nil {
		return err
	}
	return nil
}
