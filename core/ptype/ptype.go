// Package ptype defines the partnership types, shared by manager scopes and partnerships.
package ptype

type Type = string

const (
	General   Type = "GENERAL"
	Mobility  Type = "MOBILITY"
	Course    Type = "COURSE"
	Doctorate Type = "DOCTORATE"
	Project   Type = "PROJECT"
)

// All lists the partnership types in display order.
var All = []Type{General, Mobility, Course, Doctorate, Project}

var labels = map[Type]string{
	General:   "Partenariat général",
	Mobility:  "Partenariat de mobilité",
	Course:    "Partenariat de co-organisation de formation",
	Doctorate: "Partenariat de co-organisation de doctorat",
	Project:   "Projet de financement",
}

func IsValid(t Type) bool {
	_, ok := labels[t]
	return ok
}

func Label(t Type) string {
	return labels[t]
}

// HasYears reports whether partnerships of this type are bounded by academic years rather than dates.
func HasYears(t Type) bool {
	return t == Mobility || t == Course || t == Doctorate
}

// HasDates reports whether partnerships of this type are bounded by dates.
func HasDates(t Type) bool {
	return t == General || t == Project
}
