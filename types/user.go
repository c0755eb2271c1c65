package types

// User is the wire representation of a directory entry.
// Address and Company are optional owned values; nil means absent.
type User struct {
	// ID is assigned by the store on creation and never changes.
	ID int64 `json:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" validate:"max=100"`

	// Username is the unique handle of the user.
	Username string `json:"username" validate:"notblank,max=50"`

	// Email is the user's unique email address.
	Email string `json:"email" validate:"notblank,email,max=100"`

	// Phone is a free-form phone number.
	Phone string `json:"phone" validate:"max=50"`

	// Website is the user's homepage, without scheme in most seed data.
	Website string `json:"website" validate:"max=100"`

	// Address is the user's postal address, if known.
	Address *Address `json:"address"`

	// Company is the user's employer, if known.
	Company *Company `json:"company"`
}

// Address is a postal address owned by a User.
type Address struct {
	Street  string `json:"street" validate:"max=100"`
	Suite   string `json:"suite" validate:"max=100"`
	City    string `json:"city" validate:"max=100"`
	Zipcode string `json:"zipcode" validate:"max=20"`
	Geo     *Geo   `json:"geo"`
}

// Geo holds coordinates as decimal strings.
type Geo struct {
	Lat string `json:"lat" validate:"omitempty,latitude"`
	Lng string `json:"lng" validate:"omitempty,longitude"`
}

// Company is the employer record owned by a User.
type Company struct {
	Name        string `json:"name" validate:"max=100"`
	CatchPhrase string `json:"catchPhrase" validate:"max=255"`
	BS          string `json:"bs" validate:"max=255"`
}
