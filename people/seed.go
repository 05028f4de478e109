package people

import "fmt"

// seedRow is a compact fixture description expanded by Seed.
type seedRow struct {
	name       string
	department string
	team       string
	title      string
	location   string
	level      string
	comp       float64
	manager    string
	employment string
}

var seedRows = []seedRow{
	{"Darin Vance", "Executives", "Leadership", "CEO", "Headquarters", "L7", 420000, "", EmploymentFullTime},
	{"Shu Ishikawa", "Executives", "Leadership", "CTO", "Remote", "L7", 390000, "emp_001", EmploymentFullTime},
	{"Priya Raman", "Engineering", "Platform", "Engineering Manager", "Headquarters", "L6", 245000, "emp_002", EmploymentFullTime},
	{"Marcus Bell", "Engineering", "Platform", "Senior Engineer", "Remote", "L5", 198000, "emp_003", EmploymentFullTime},
	{"Elena Sorokina", "Engineering", "Product Eng", "Engineer", "NYC", "L4", 172000, "emp_003", EmploymentFullTime},
	{"Jonah Whitfield", "Engineering", "Product Eng", "Engineer", "Austin", "L3", 151000, "emp_003", EmploymentFullTime},
	{"Tessa Okafor", "Product", "Core", "Product Manager", "Headquarters", "L5", 189000, "emp_002", EmploymentFullTime},
	{"Omar Haddad", "Design", "Core", "Product Designer", "Remote", "L4", 158000, "emp_007", EmploymentFullTime},
	{"Kira Lindqvist", "Sales", "AMER", "Account Executive", "Chicago", "L3", 132000, "emp_001", EmploymentFullTime},
	{"Leo Marchetti", "Sales", "EMEA", "Account Executive", "London", "L3", 128000, "emp_001", EmploymentFullTime},
	{"Avery Chen", "Finance", "FP&A", "Financial Analyst", "NYC", "L3", 118000, "emp_001", EmploymentFullTime},
	{"Jordan Ames", "HR", "People Ops", "HR Generalist", "Headquarters", "L3", 102000, "emp_001", EmploymentFullTime},
	{"Riley Dunne", "IT", "Corp IT", "IT Administrator", "Austin", "L3", 98000, "emp_001", EmploymentFullTime},
	{"Cameron Ortiz", "Customer Support", "Tier 2", "Support Specialist", "Remote", "L2", 72000, "emp_012", EmploymentFullTime},
	{"Quinn Barry", "Operations", "Facilities", "Office Coordinator", "Headquarters", "L2", 68000, "emp_012", EmploymentPartTime},
	{"Parker Singh", "Engineering", "Platform", "Contract Engineer", "Toronto", "L4", 95, "emp_003", EmploymentContractor},
	{"Sage Novak", "Marketing", "Growth", "Marketing Intern", "NYC", "L1", 28, "emp_001", EmploymentIntern},
	{"Rowan Petit", "Legal", "Counsel", "Corporate Counsel", "Headquarters", "L5", 205000, "emp_001", EmploymentFullTime},
}

// Seed populates the directory with a deterministic demo dataset.
// Contractors and interns are Hourly; everyone else Annual with a bonus
// target scaled by seniority. Calling Seed twice overwrites rows in place.
func (d *Directory) Seed() (int, error) {
	employees := make([]Employee, 0, len(seedRows))
	for i, r := range seedRows {
		id := fmt.Sprintf("emp_%03d", i+1)
		email := fmt.Sprintf("%s@opusguard.com", lowerFirst(r.name))

		payPeriod := PayAnnual
		if r.employment == EmploymentContractor || r.employment == EmploymentIntern {
			payPeriod = PayHourly
		}

		bonus := 10.0
		switch {
		case r.department == "Executives":
			bonus = 20
		case r.level == "L6" || r.level == "L5":
			bonus = 15
		}
		if payPeriod == PayHourly {
			bonus = 0
		}

		employees = append(employees, Employee{
			ID:             id,
			FullName:       r.name,
			Email:          email,
			Department:     r.department,
			Team:           r.team,
			Title:          r.title,
			ManagerID:      r.manager,
			WorkLocation:   r.location,
			EmploymentType: r.employment,
			PayPeriod:      payPeriod,
			Level:          r.level,
			CashComp:       r.comp,
			TargetBonusPct: bonus,
			Status:         StatusActive,
			StartDate:      "2021-03-01",
			Jurisdiction:   "CA",
			LegalEntity:    "Opus Guard Inc.",
		})
	}

	if err := d.UpdateEmployees(employees); err != nil {
		return 0, err
	}
	return len(employees), nil
}

func lowerFirst(fullName string) string {
	first := fullName
	for i := 0; i < len(fullName); i++ {
		if fullName[i] == ' ' {
			first = fullName[:i]
			break
		}
	}
	out := make([]byte, len(first))
	for i := 0; i < len(first); i++ {
		c := first[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
