package models

import "time"

// Course is a catalog entry that can be offered at a location.
type Course struct {
	ID      int64  `db:"id" json:"id"`
	Code    string `db:"code" json:"code"`
	Title   string `db:"title" json:"title"`
	Hours   int    `db:"hours" json:"hours"`
	MaxSize int    `db:"max_size" json:"max_size"`
	// QualifiedInstructors maps instructor ID to the last date they taught the course.
	// A zero time means the instructor is qualified but has never taught it.
	QualifiedInstructors map[string]time.Time `db:"-" json:"qualified_instructors,omitempty"`
	RequiredResources    map[int64]int        `db:"-" json:"required_resources,omitempty"`
}

// LengthDays converts course hours into business days, one day per eight hours.
func (c Course) LengthDays() int {
	days := c.Hours / 8
	if days < 1 {
		return 1
	}
	return days
}

// CourseQualification links an instructor to a course they may teach.
type CourseQualification struct {
	CourseID     int64  `db:"course_id" json:"course_id"`
	InstructorID string `db:"instructor_id" json:"instructor_id"`
}

// ResourceQuantity is a (owner, resource, quantity) row used for course requirements and room inventory.
type ResourceQuantity struct {
	OwnerID    int64 `db:"owner_id" json:"owner_id"`
	ResourceID int64 `db:"resource_id" json:"resource_id"`
	Quantity   int   `db:"quantity" json:"quantity"`
}

// Room is a physical classroom housed at a location.
type Room struct {
	ID        int64         `db:"id" json:"id"`
	Station   string        `db:"station" json:"station"`
	Number    string        `db:"number" json:"number"`
	Active    bool          `db:"active" json:"active"`
	Resources map[int64]int `db:"-" json:"resources,omitempty"`
}

// Satisfies reports whether the room holds every resource the course requires.
func (r Room) Satisfies(c *Course) bool {
	for resourceID, required := range c.RequiredResources {
		if r.Resources[resourceID] < required {
			return false
		}
	}
	return true
}

// Instructor is a user allowed to teach courses.
type Instructor struct {
	ID                 string `db:"id" json:"id"`
	FirstName          string `db:"first_name" json:"first_name"`
	LastName           string `db:"last_name" json:"last_name"`
	PointID            int64  `db:"point_id" json:"point_id"`
	RoleID             int    `db:"role_id" json:"role_id"`
	QualificationCount int    `db:"-" json:"qualification_count"`
}

// Location is a training site with a daily enrollment release cap.
type Location struct {
	ID               int64    `db:"id" json:"id"`
	Code             string   `db:"code" json:"code"`
	Name             string   `db:"name" json:"name"`
	Latitude         float64  `db:"latitude" json:"latitude"`
	Longitude        float64  `db:"longitude" json:"longitude"`
	ReleaseRate      *int     `db:"release_rate" json:"release_rate,omitempty"`
	LocalRooms       []int64  `db:"-" json:"local_rooms,omitempty"`
	LocalInstructors []string `db:"-" json:"local_instructors,omitempty"`
}
