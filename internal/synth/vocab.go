package synth

// ---------------------------------------------------------------------------
// Value pools
// ---------------------------------------------------------------------------

var (
	industries = []string{
		"Technology", "Healthcare", "Manufacturing", "Retail", "Finance",
		"Education", "Government", "Hospitality", "Construction", "Legal",
	}

	employeeCounts = []int{500, 1000, 2500, 5000, 10000}

	states = []string{"CA", "NY", "TX", "FL", "IL", "WA", "MA"}

	specialties = []string{
		"Radiology", "Oncology", "Primary Care", "Gastroenterology", "Pathology",
	}

	genders = []Weighted[string]{
		{GenderMale, 0.48},
		{GenderFemale, 0.50},
		{GenderOther, 0.02},
	}

	enrollmentChannels = []Weighted[string]{
		{"Email", 0.50},
		{"Portal", 0.30},
		{"Phone", 0.15},
		{"HR Event", 0.05},
	}

	enrollmentStatuses = []Weighted[string]{
		{"Active", 0.6},
		{"Completed", 0.3},
		{"Inactive", 0.1},
	}

	screeningsPerEnrollment = []Weighted[int]{
		{1, 0.40},
		{2, 0.30},
		{3, 0.15},
		{4, 0.10},
		{5, 0.05},
	}

	claimStatuses = []Weighted[string]{
		{"Paid", 0.85},
		{"Pending", 0.10},
		{"Denied", 0.05},
	}

	eventTypes = []string{
		"login", "view_results", "schedule_screening", "update_profile",
		"download_report", "chat_support", "view_education_content", "logout",
	}

	deviceTypes = []Weighted[string]{
		{"Desktop", 0.5},
		{"Mobile", 0.4},
		{"Tablet", 0.1},
	}
)

// claimVocabulary lists the follow-up procedures and ICD-10 diagnoses billed
// after an abnormal screening of a given type.
type claimVocabulary struct {
	Procedures []string
	Diagnoses  []string
}

var (
	mammogramClaims = claimVocabulary{
		Procedures: []string{"Diagnostic Mammogram", "Breast Ultrasound", "Breast Biopsy", "MRI"},
		Diagnoses:  []string{"C50.9", "D48.6", "N60.1"},
	}
	colonoscopyClaims = claimVocabulary{
		Procedures: []string{"Polypectomy", "Follow-up Colonoscopy", "CT Colonography"},
		Diagnoses:  []string{"C18.9", "D12.6", "K63.5"},
	}
	genericClaims = claimVocabulary{
		Procedures: []string{"Consultation", "Imaging", "Biopsy", "Lab Test"},
		Diagnoses:  []string{"C80.1", "D48.9", "R76.0"},
	}
)

func claimVocabularyFor(screeningType string) claimVocabulary {
	switch screeningType {
	case Mammogram:
		return mammogramClaims
	case Colonoscopy:
		return colonoscopyClaims
	default:
		return genericClaims
	}
}
