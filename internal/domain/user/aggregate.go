package user

import (
	"errors"

	"github.com/example/budget-event-sourced/internal/domain/aggregate"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

const AggregateType = "User"

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrInvalidEmail      = errors.New("email is required")
	ErrInvalidName       = errors.New("firstname and lastname are required")
)

// User is the account that owns envelopes and budget plans. Its aggregate id
// is the user id.
type User struct {
	aggregate.Base
	Email              string `json:"email"`
	Firstname          string `json:"firstname"`
	Lastname           string `json:"lastname"`
	LanguagePreference string `json:"languagePreference"`
	Erased             bool   `json:"erased"`
}

func (u *User) IsDeleted() bool { return u.Erased }

func (u *User) WithoutPersonalData() any {
	c := *u
	c.Email, c.Firstname, c.Lastname = "", "", ""
	return &c
}

var Type = aggregate.NewType(AggregateType, func() *User { return &User{} }, map[string]aggregate.ApplyFunc[*User]{
	EventSignedUp:                  (*User).applySignedUp,
	EventNameChanged:               (*User).applyNameChanged,
	EventLanguagePreferenceChanged: (*User).applyLanguagePreferenceChanged,
	EventErased:                    (*User).applyErased,
})

func SignUp(userID, requestID, email, firstname, lastname, language string) (*User, error) {
	if email == "" {
		return nil, ErrInvalidEmail
	}
	if firstname == "" || lastname == "" {
		return nil, ErrInvalidName
	}

	u := &User{}
	u.ID = userID
	if err := Type.Raise(u, store.Record{
		EventType: EventSignedUp,
		UserID:    userID,
		RequestID: requestID,
		Data: SignedUp{
			Email:              email,
			Firstname:          firstname,
			Lastname:           lastname,
			LanguagePreference: language,
		},
	}); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) ChangeName(userID, requestID, firstname, lastname string) error {
	if err := aggregate.Guard(u, userID); err != nil {
		return err
	}
	if firstname == "" || lastname == "" {
		return ErrInvalidName
	}
	return Type.Raise(u, store.Record{
		EventType: EventNameChanged,
		UserID:    userID,
		RequestID: requestID,
		Data:      NameChanged{Firstname: firstname, Lastname: lastname},
	})
}

func (u *User) ChangeLanguagePreference(userID, requestID, language string) error {
	if err := aggregate.Guard(u, userID); err != nil {
		return err
	}
	return Type.Raise(u, store.Record{
		EventType: EventLanguagePreferenceChanged,
		UserID:    userID,
		RequestID: requestID,
		Data:      LanguagePreferenceChanged{LanguagePreference: language},
	})
}

func (u *User) Erase(userID, requestID string) error {
	if err := aggregate.Guard(u, userID); err != nil {
		return err
	}
	return Type.Raise(u, store.Record{
		EventType: EventErased,
		UserID:    userID,
		RequestID: requestID,
		Data:      Erased{IsErased: true},
	})
}

func (u *User) applySignedUp(ev store.Event) error {
	var d SignedUp
	if err := ev.Decode(&d); err != nil {
		return err
	}
	u.Email = d.Email
	u.Firstname = d.Firstname
	u.Lastname = d.Lastname
	u.LanguagePreference = d.LanguagePreference
	return nil
}

func (u *User) applyNameChanged(ev store.Event) error {
	var d NameChanged
	if err := ev.Decode(&d); err != nil {
		return err
	}
	u.Firstname = d.Firstname
	u.Lastname = d.Lastname
	return nil
}

func (u *User) applyLanguagePreferenceChanged(ev store.Event) error {
	var d LanguagePreferenceChanged
	if err := ev.Decode(&d); err != nil {
		return err
	}
	u.LanguagePreference = d.LanguagePreference
	return nil
}

// applyErased drops the sealed values that can no longer be opened.
func (u *User) applyErased(ev store.Event) error {
	var d Erased
	if err := ev.Decode(&d); err != nil {
		return err
	}
	u.Erased = d.IsErased
	u.Email = ""
	u.Firstname = ""
	u.Lastname = ""
	return nil
}
