package user

const (
	EventSignedUp                  = "UserSignedUp"
	EventNameChanged               = "UserNameChanged"
	EventLanguagePreferenceChanged = "UserLanguagePreferenceChanged"
	EventErased                    = "UserErased"
)

type SignedUp struct {
	Email              string `json:"email"`
	Firstname          string `json:"firstname"`
	Lastname           string `json:"lastname"`
	LanguagePreference string `json:"languagePreference"`
}

func (SignedUp) PersonalDataFields() []string {
	return []string{"email", "firstname", "lastname"}
}

type NameChanged struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

func (NameChanged) PersonalDataFields() []string {
	return []string{"firstname", "lastname"}
}

type LanguagePreferenceChanged struct {
	LanguagePreference string `json:"languagePreference"`
}

// Erased carries no personal data: it is appended after the key is gone.
type Erased struct {
	IsErased bool `json:"isErased"`
}
