package synth

import "time"

// Screening types.
const (
	Mammogram              = "Mammogram"
	Colonoscopy            = "Colonoscopy"
	ProstateScreening      = "Prostate Screening"
	CervicalScreening      = "Cervical Screening"
	GeneralHealthScreening = "General Health Screening"
)

// Screening results.
const (
	ResultNormal         = "Normal"
	ResultAbnormalBenign = "Abnormal - Benign"
	ResultCancerDetected = "Cancer Detected"
)

// Genders as recorded on members.
const (
	GenderMale   = "M"
	GenderFemale = "F"
	GenderOther  = "Other"
)

// Employer is a contracting employer.
type Employer struct {
	ID            string
	Name          string
	Industry      string
	EmployeeCount int
	State         string
	ContractStart time.Time
}

// Member is an employee covered by the screening program. An empty Email
// is a deliberately missing value.
type Member struct {
	ID          string
	EmployerID  string
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Gender      string
	State       string
	ZipCode     string
	Email       string
	Phone       string
	HighRisk    bool
	CreatedAt   time.Time
}

// Enrollment records a member's opt-in into the program.
type Enrollment struct {
	ID             string
	MemberID       string
	EmployerID     string
	EnrollmentDate time.Time
	Channel        string
	Status         string
	ConsentGiven   bool
}

// Provider performs screenings and bills follow-up care.
type Provider struct {
	ID        string
	Name      string
	Specialty string
	State     string
	NPI       string
}

// Screening is one preventive test event. FollowUpCompleted is nil exactly
// when FollowUpNeeded is false.
type Screening struct {
	ID                string
	MemberID          string
	EmployerID        string
	ProviderID        string
	Type              string
	ScreeningDate     time.Time
	Result            string
	ResultDate        time.Time
	FollowUpNeeded    bool
	FollowUpCompleted *bool
	Cost              int
}

// NeedsClaims reports whether follow-up claims are generated for s.
func (s Screening) NeedsClaims() bool {
	return s.Result == ResultAbnormalBenign || s.Result == ResultCancerDetected
}

// Claim is a follow-up medical claim. ScreeningID links back to the
// originating screening and is not part of the exported table.
type Claim struct {
	ID                   string
	ScreeningID          string
	MemberID             string
	ProviderID           string
	ClaimDate            time.Time
	ServiceDate          time.Time
	ProcedureCode        string
	ProcedureDescription string
	DiagnosisCode        string
	ClaimAmount          int
	PaidAmount           int
	Status               string
}

// AppEvent is one member interaction with the screening portal.
type AppEvent struct {
	ID         string
	MemberID   string
	EventType  string
	Timestamp  time.Time
	SessionID  string
	DeviceType string
}

// Dataset is the full output of one generation run.
type Dataset struct {
	Employers   []Employer
	Members     []Member
	Enrollments []Enrollment
	Providers   []Provider
	Screenings  []Screening
	Claims      []Claim
	AppEvents   []AppEvent
}

// SeedResult summarizes the output of a generation run.
type SeedResult struct {
	Employers   int           `json:"employers"`
	Members     int           `json:"members"`
	Enrollments int           `json:"enrollments"`
	Providers   int           `json:"providers"`
	Screenings  int           `json:"screenings"`
	Claims      int           `json:"claims"`
	AppEvents   int           `json:"appEvents"`
	Duration    time.Duration `json:"duration"`
}

// Result counts the rows of every table in d.
func (d *Dataset) Result() SeedResult {
	return SeedResult{
		Employers:   len(d.Employers),
		Members:     len(d.Members),
		Enrollments: len(d.Enrollments),
		Providers:   len(d.Providers),
		Screenings:  len(d.Screenings),
		Claims:      len(d.Claims),
		AppEvents:   len(d.AppEvents),
	}
}
