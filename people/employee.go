// Package people provides the employee directory: the shared dataset
// that completed bulk-change jobs mutate.
package people

// EmploymentType values recognized by the directory.
const (
	EmploymentFullTime   = "Full-time"
	EmploymentPartTime   = "Part-time"
	EmploymentContractor = "Contractor"
	EmploymentIntern     = "Intern"
)

// PayPeriod values. Hourly employees cannot carry a target bonus.
const (
	PayAnnual = "Annual"
	PayHourly = "Hourly"
)

// Employment status values.
const (
	StatusActive   = "Active"
	StatusInvited  = "Invited"
	StatusInactive = "Inactive"
)

// Departments is the closed set of valid department names.
var Departments = []string{
	"Engineering",
	"Product",
	"Design",
	"Sales",
	"Marketing",
	"Finance",
	"HR",
	"IT",
	"Customer Support",
	"Operations",
	"Legal",
	"Executives",
}

// WorkLocations is the closed set of valid work locations.
var WorkLocations = []string{
	"Headquarters",
	"Remote",
	"NYC",
	"Austin",
	"Chicago",
	"London",
	"Toronto",
}

// Levels is the closed set of valid job levels.
var Levels = []string{"L1", "L2", "L3", "L4", "L5", "L6", "L7"}

// Employee is one directory record. Identity is the opaque string ID;
// Email is unique case-insensitively and usable as a secondary identity
// in CSV imports.
type Employee struct {
	ID             string  `json:"id"`
	FullName       string  `json:"fullName"`
	Email          string  `json:"email"`
	Department     string  `json:"department"`
	Team           string  `json:"team,omitempty"`
	Title          string  `json:"title,omitempty"`
	ManagerID      string  `json:"managerId,omitempty"`
	WorkLocation   string  `json:"workLocation,omitempty"`
	EmploymentType string  `json:"employmentType,omitempty"`
	PayPeriod      string  `json:"payPeriod,omitempty"`
	Level          string  `json:"level,omitempty"`
	CashComp       float64 `json:"cashComp,omitempty"`
	TargetBonusPct float64 `json:"targetBonusPct,omitempty"`
	Status         string  `json:"status,omitempty"`
	StartDate      string  `json:"startDate,omitempty"`
	EndDate        string  `json:"endDate,omitempty"`
	Jurisdiction   string  `json:"jurisdiction,omitempty"`
	LegalEntity    string  `json:"legalEntity,omitempty"`
}

// ValidDepartment reports whether name is in the closed department set.
func ValidDepartment(name string) bool { return contains(Departments, name) }

// ValidWorkLocation reports whether name is in the closed location set.
func ValidWorkLocation(name string) bool { return contains(WorkLocations, name) }

// ValidLevel reports whether name is one of L1-L7.
func ValidLevel(name string) bool { return contains(Levels, name) }

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
