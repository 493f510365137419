package credentials

// Credential is one employee's HRIS login. Immutable after load.
type Credential struct {
	EmployeeNumber string `json:"employee_number" yaml:"employee_number" validate:"required"`
	Password       string `json:"password" yaml:"password" validate:"required"`
}

// String never reveals the password.
func (c Credential) String() string {
	return c.EmployeeNumber + ":****"
}

// File is the on-disk shape shared by the JSON and YAML formats.
type File struct {
	Credentials []Credential `json:"credentials" yaml:"credentials" validate:"required,min=1,dive"`
}
